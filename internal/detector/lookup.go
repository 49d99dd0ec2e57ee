package detector

import (
	"go.uber.org/zap"

	"mandexing/internal/crystal"
)

// Lookup is a pick session: the reflections are projected once, indexed,
// and then queried in absolute detector pixels until the crystal changes.
type Lookup struct {
	det   *Detector
	tree  *QuadTree
	refls []crystal.Reflection
}

// NewLookup projects xtal through det and indexes the result.
func NewLookup(xtal *crystal.Crystal, det *Detector, opts IndexOptions) *Lookup {
	det.Project(xtal)
	refls := xtal.Reflections()
	tree := BuildIndex(refls, opts)

	det.logger.Debug("lookup table prepared",
		zap.Int("indexed", tree.Len()),
		zap.Int("nodes", tree.NodeCount()),
		zap.Int("depth", tree.Depth()))

	return &Lookup{det: det, tree: tree, refls: refls}
}

// NearestAt returns the id of the reflection nearest to the absolute pixel
// (px, py), or (-1, false).
func (l *Lookup) NearestAt(px, py float64) (int, bool) {
	p := l.det.FromDetector(px, py)
	return l.tree.Query(p.X, p.Y)
}

// Reflection returns the reflection as it was when the lookup was built.
func (l *Lookup) Reflection(id int) (crystal.Reflection, bool) {
	if id < 0 || id >= len(l.refls) {
		return crystal.Reflection{}, false
	}
	return l.refls[id], true
}

// Tree exposes the index for diagnostics.
func (l *Lookup) Tree() *QuadTree { return l.tree }
