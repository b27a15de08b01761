package postprocess

import (
	"path/filepath"
	"strconv"

	"gonzbd/internal/domain"
)

// workDir is where a job's files live while downloading and during
// verify/repair/extract, mirroring admission.Controller's layout
// (<temp_dir>/<job_id>/...).
func (p *Pipeline) workDir(job *domain.Job) string {
	return filepath.Join(p.cfg.TempDir, strconv.FormatInt(job.ID, 10))
}
