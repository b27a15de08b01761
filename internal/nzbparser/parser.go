// Package nzbparser is the pure NZB parser external interface (spec.md
// §6): parse(bytes) → {articles[], total_size, meta, content_hash}.
package nzbparser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"gonzbd/internal/domain"
)

// Meta carries the optional <head><meta> hints an NZB can embed.
type Meta struct {
	Name     string
	Password string
}

// Result is the provisional article list an Admission Controller turns
// into a Job.
type Result struct {
	NZB         *domain.NZB
	Articles    []*domain.Article
	Files       []*domain.File
	TotalSize   int64
	Meta        Meta
	ContentHash string
}

// Parse reads an entire NZB document into a Result. The whole body is
// buffered since content_hash must cover the exact bytes received.
func Parse(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read nzb: %w", err)
	}

	var nzb domain.NZB
	if err := xml.Unmarshal(data, &nzb); err != nil {
		return nil, fmt.Errorf("parse nzb xml: %w", err)
	}

	hash, err := domain.CalculateFileHash(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("hash nzb: %w", err)
	}

	res := &Result{
		NZB: &nzb,
		Meta: Meta{
			Name:     nzb.Head.MetaValue("name"),
			Password: nzb.Head.MetaValue("password"),
		},
		ContentHash: hash,
	}

	for _, f := range nzb.Files {
		var offset int64
		file := &domain.File{Name: f.Subject, Size: f.TotalSize()}
		for _, seg := range f.Segments {
			res.Articles = append(res.Articles, &domain.Article{
				MessageID: seg.MessageID,
				Offset:    offset,
				Length:    seg.Bytes,
				FileName:  f.Subject,
				Status:    domain.ArticleStatusPending,
			})
			offset += seg.Bytes
		}
		res.TotalSize += file.Size
		res.Files = append(res.Files, file)
	}

	return res, nil
}
