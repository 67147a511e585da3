package extract

import (
	"context"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/rotisserie/eris"

	"github.com/georetail/siteselect/internal/model"
)

// Competition counts retail POIs within the search radius of each cell
// centroid. The count is an inverse criterion: more competitors score lower
// after normalization.
type Competition struct {
	idx    *rtree.Rtree
	radius float64
}

func NewCompetition(retail []geom.Point, radiusM float64) *Competition {
	e := &Competition{idx: rtree.NewTree(25, 50), radius: radiusM}
	for _, p := range retail {
		e.idx.Insert(p)
	}
	return e
}

func (e *Competition) Name() string { return "competition" }

func (e *Competition) Extract(ctx context.Context, cells []*model.GridCell) ([]map[string]float64, error) {
	out := make([]map[string]float64, len(cells))
	for i, c := range cells {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "extract: competition canceled")
		}
		count, _ := pointsWithin(e.idx, c.Centroid, e.radius)
		out[i] = map[string]float64{
			model.FeatRetailCount: float64(count),
		}
	}
	return out, nil
}

// Amenities counts POIs per category around each centroid and blends the
// counts into a composite amenity score. The banking category count doubles
// as the economic activity proxy.
type Amenities struct {
	categories map[string]*rtree.Rtree
	// order fixes the category iteration sequence. Float addition is not
	// associative, so summing the blend in map order would make the score
	// bit-unstable across runs.
	order   []string
	weights map[string]float64
	radius  float64
}

func NewAmenities(byCategory map[string][]geom.Point, categoryWeights map[string]float64, radiusM float64) *Amenities {
	e := &Amenities{
		categories: make(map[string]*rtree.Rtree, len(byCategory)),
		order:      make([]string, 0, len(byCategory)),
		weights:    categoryWeights,
		radius:     radiusM,
	}
	for cat, pts := range byCategory {
		idx := rtree.NewTree(25, 50)
		for _, p := range pts {
			idx.Insert(p)
		}
		e.categories[cat] = idx
		e.order = append(e.order, cat)
	}
	sort.Strings(e.order)
	return e
}

func (e *Amenities) Name() string { return "amenities" }

func (e *Amenities) Extract(ctx context.Context, cells []*model.GridCell) ([]map[string]float64, error) {
	out := make([]map[string]float64, len(cells))
	for i, c := range cells {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "extract: amenities canceled")
		}

		feats := make(map[string]float64, 2*len(e.categories)+1)
		var score float64
		for _, cat := range e.order {
			count, nearest := pointsWithin(e.categories[cat], c.Centroid, e.radius)
			feats[cat+"_count_1km"] = float64(count)
			feats[cat+"_nearest_dist_m"] = nearest
			score += e.weights[cat] * float64(count)
		}
		feats[model.FeatAmenityScore] = score
		out[i] = feats
	}
	return out, nil
}

// pointsWithin counts indexed points within Euclidean distance r of p and
// returns the distance to the closest one. When no point falls inside the
// radius the distance reported is r itself, keeping the value bounded.
func pointsWithin(idx *rtree.Rtree, p geom.Point, r float64) (int, float64) {
	count := 0
	nearest := r
	for _, hit := range idx.SearchIntersect(searchBox(p, r)) {
		q, ok := hit.(geom.Point)
		if !ok {
			continue
		}
		d := math.Hypot(q.X-p.X, q.Y-p.Y)
		if d > r {
			continue
		}
		count++
		if d < nearest {
			nearest = d
		}
	}
	return count, nearest
}
