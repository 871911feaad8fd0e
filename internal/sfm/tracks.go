package sfm

import "sort"

// TrackIndex maps each view to the sorted ids of the landmarks it
// tracks. Building it from feature matches is the caller's job; the
// scope manager only intersects the per-view lists.
type TrackIndex map[ViewID][]LandmarkID

// Insert adds landmark ids to a view's track list, keeping the list
// sorted and free of duplicates.
func (t TrackIndex) Insert(view ViewID, landmarks ...LandmarkID) {
	list := t[view]
	for _, lm := range landmarks {
		i := sort.Search(len(list), func(i int) bool { return list[i] >= lm })
		if i < len(list) && list[i] == lm {
			continue
		}
		list = append(list, 0)
		copy(list[i+1:], list[i:])
		list[i] = lm
	}
	t[view] = list
}

// CommonTrackCount returns the number of landmarks tracked by both
// views. Views without tracks count as zero.
func (t TrackIndex) CommonTrackCount(a, b ViewID) int {
	la, lb := t[a], t[b]
	n, i, j := 0, 0, 0
	for i < len(la) && j < len(lb) {
		switch {
		case la[i] < lb[j]:
			i++
		case la[i] > lb[j]:
			j++
		default:
			n++
			i++
			j++
		}
	}
	return n
}
