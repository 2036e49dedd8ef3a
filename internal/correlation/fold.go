package correlation

import (
	"strings"

	"github.com/chen-001/gallery-app-clean/internal/analysis"
)

// IsFold reports whether name denotes the fold view of another table.
func (l *Loader) IsFold(name string) bool {
	return len(name) > len(l.foldSuffix) && strings.HasSuffix(name, l.foldSuffix)
}

// BaseName strips the fold suffix from name.
func (l *Loader) BaseName(name string) string {
	if l.IsFold(name) {
		return strings.TrimSuffix(name, l.foldSuffix)
	}
	return name
}

// LoadProcessed loads name from dataset. Fold names are derived from their base table:
// cross-sectional rank, then absolute distance from the row mean. A fold name whose
// base is absent is reported as not found.
func (l *Loader) LoadProcessed(dataset, name string) (*analysis.Table, bool, error) {
	if !l.IsFold(name) {
		return l.Load(dataset, name)
	}
	base, ok, err := l.Load(dataset, l.BaseName(name))
	if err != nil || !ok {
		return nil, ok, err
	}
	folded := base.RankRows().FoldAbs()
	folded.Name = name
	return folded, true, nil
}
