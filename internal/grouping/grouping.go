// Package grouping clusters detections by visual similarity for
// presentation. Detections sharing an exact hash bucket together; buckets
// whose hashes are similar merge while the combined size stays under the
// group cap. The merge is a single greedy pass, never transitive, so slow
// scene drift does not chain unrelated detections together.
package grouping

import (
	"sort"

	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/imagehash"
	"github.com/tphakala/pestguard-go/internal/settings"
)

// Group is one visual-similarity cluster of detections.
type Group struct {
	Hash    string                `json:"hash,omitempty"` // representative hash, empty for unhashed singletons
	Size    int                   `json:"size"`
	Primary datastore.Detection   `json:"primary"`
	Members []datastore.Detection `json:"members"` // newest first, includes the primary
}

// Grouper builds detection groups from recent history.
type Grouper struct {
	ds    datastore.Interface
	store *settings.Store
}

// New builds a grouper over the datastore.
func New(ds datastore.Interface, store *settings.Store) *Grouper {
	return &Grouper{ds: ds, store: store}
}

// RecentGroups groups the most recent detections, newest group first.
func (g *Grouper) RecentGroups(limit int) ([]Group, error) {
	detections, err := g.ds.GetRecentDetections(limit)
	if err != nil {
		return nil, err
	}

	foesByDetection := make(map[uint][]datastore.Foe, len(detections))
	for i := range detections {
		foes, err := g.ds.GetDetectionFoes(detections[i].ID)
		if err != nil {
			return nil, err
		}
		foesByDetection[detections[i].ID] = foes
	}

	return BuildGroups(detections, foesByDetection, g.store.SimilarityThreshold(), g.store.MaxGroupSize()), nil
}

// bucket is an intermediate cluster keyed by one representative hash.
type bucket struct {
	hash    string
	members []datastore.Detection
}

// BuildGroups clusters detections by hash similarity. Unhashed detections
// form singletons; hashed detections bucket by exact hash, then buckets
// merge greedily with the first similar bucket while the combined size stays
// at or under maxGroupSize.
func BuildGroups(detections []datastore.Detection, foes map[uint][]datastore.Foe, threshold, maxGroupSize int) []Group {
	var buckets []*bucket
	byHash := make(map[string]*bucket)
	var singletons []*bucket

	for i := range detections {
		d := detections[i]
		if d.ImageHash == "" {
			singletons = append(singletons, &bucket{members: []datastore.Detection{d}})
			continue
		}
		if b, ok := byHash[d.ImageHash]; ok {
			b.members = append(b.members, d)
			continue
		}
		b := &bucket{hash: d.ImageHash, members: []datastore.Detection{d}}
		byHash[d.ImageHash] = b
		buckets = append(buckets, b)
	}

	// Greedy single pass over the exact-hash buckets: merge into the first
	// earlier bucket that is similar and still has room.
	var merged []*bucket
	for _, b := range buckets {
		placed := false
		for _, target := range merged {
			if len(target.members)+len(b.members) > maxGroupSize {
				continue
			}
			if imagehash.Similar(b.hash, target.hash, threshold) {
				target.members = append(target.members, b.members...)
				placed = true
				break
			}
		}
		if !placed {
			merged = append(merged, b)
		}
	}
	merged = append(merged, singletons...)

	groups := make([]Group, 0, len(merged))
	for _, b := range merged {
		sort.Slice(b.members, func(i, j int) bool {
			return b.members[i].CreatedAt.After(b.members[j].CreatedAt)
		})
		groups = append(groups, Group{
			Hash:    b.hash,
			Size:    len(b.members),
			Primary: pickPrimary(b.members, foes),
			Members: b.members,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Primary.CreatedAt.After(groups[j].Primary.CreatedAt)
	})
	return groups
}

// pickPrimary chooses the member that best represents the group: highest
// confidence dominates, then foe count, then recency.
func pickPrimary(members []datastore.Detection, foes map[uint][]datastore.Foe) datastore.Detection {
	best := members[0]
	bestScore := primaryScore(best, foes)
	for _, member := range members[1:] {
		if score := primaryScore(member, foes); score > bestScore {
			best = member
			bestScore = score
		}
	}
	return best
}

func primaryScore(d datastore.Detection, foes map[uint][]datastore.Foe) float64 {
	detectionFoes := foes[d.ID]
	maxConfidence := 0.0
	for _, foe := range detectionFoes {
		if foe.Confidence > maxConfidence {
			maxConfidence = foe.Confidence
		}
	}
	return 100*maxConfidence + 10*float64(len(detectionFoes)) + float64(d.CreatedAt.UnixMicro())/1e6
}
