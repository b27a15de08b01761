package persistence

import "context"

// Category is the persisted routing override: destination/post-process per
// category, seeded from config at startup and editable at runtime.
type Category struct {
	Name        string
	Destination string
	PostProcess string
}

func (s *Store) SaveCategory(ctx context.Context, c *Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (name, destination, post_process)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			destination = excluded.destination,
			post_process = excluded.post_process`,
		c.Name, c.Destination, c.PostProcess,
	)
	return err
}

func (s *Store) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, destination, post_process FROM categories`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.Name, &c.Destination, &c.PostProcess); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
