package directunpack

import (
	"regexp"
	"strings"

	"gonzbd/internal/domain"
)

// rarVolumePattern recognizes both RAR naming conventions: the legacy
// ".r00"/".r01"/... scheme and the modern ".part01.rar"/".part02.rar" scheme.
var rarVolumePattern = regexp.MustCompile(`(?i)^(.*?)(?:\.part\d+\.rar|\.rar|\.r\d{2,3})$`)

// rarSet is the known-upfront member list of one multi-volume RAR
// archive, derived from job.Files at admission time — the volume count
// is never guessed, only the completion count is awaited.
type rarSet struct {
	key       string
	files     []*domain.File
	extracted bool
}

func (s *rarSet) allCompleted() bool {
	for _, f := range s.files {
		if !f.Completed {
			return false
		}
	}
	return len(s.files) > 0
}

// mainVolume returns the volume extractors should be pointed at: the
// plain ".rar" file if present, else the lowest-numbered volume.
func (s *rarSet) mainVolume() *domain.File {
	var best *domain.File
	for _, f := range s.files {
		if strings.HasSuffix(strings.ToLower(f.Name), ".rar") && !strings.Contains(strings.ToLower(f.Name), ".part") {
			return f
		}
		if best == nil || f.Name < best.Name {
			best = f
		}
	}
	return best
}

// buildRarSets groups a job's known files into multi-volume RAR sets by
// shared base name, skipping any file that isn't part of a RAR set.
func buildRarSets(files []*domain.File) map[string]*rarSet {
	sets := make(map[string]*rarSet)
	for _, f := range files {
		m := rarVolumePattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		key := m[1]
		s, ok := sets[key]
		if !ok {
			s = &rarSet{key: key}
			sets[key] = s
		}
		s.files = append(s.files, f)
	}
	return sets
}
