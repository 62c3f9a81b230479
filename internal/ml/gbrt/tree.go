package gbrt

import "sort"

// leafSentinel marks a node without a split.
const leafSentinel = -1

// Node is one vertex of a regression tree, addressed by index into the
// tree's flat node array. Internal nodes keep the Value they had while
// still a leaf, so a caller can attribute a prediction's movement along
// its decision path step by step.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
	Gain      float64 `json:"g,omitempty"`
	Count     int     `json:"n"`
}

// IsLeaf reports whether the node carries no split.
func (n *Node) IsLeaf() bool {
	return n.Feature == leafSentinel
}

// Tree is a single regression tree stored as a flat node array. Index 0
// is the root. Rows with a feature value <= the node threshold descend
// left, everything else right.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks the tree for one feature vector.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		nd := &t.Nodes[i]
		if nd.IsLeaf() {
			return nd.Value
		}
		if x[nd.Feature] <= nd.Threshold {
			i = nd.Left
		} else {
			i = nd.Right
		}
	}
}

// grower holds the state shared by every split evaluation while one
// tree is grown against the current residuals.
type grower struct {
	x        [][]float64
	resid    []float64
	features []int
	p        Params
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	left      []int
	right     []int
}

// candidate is a leaf eligible for splitting, with its best split
// precomputed. ok is false when no positive-gain split exists or the
// leaf hit the depth or size floor.
type candidate struct {
	node  int
	rows  []int
	depth int
	ok    bool
	split split
}

// growTree fits one regression tree to the residuals, expanding the
// highest-gain leaf first until the leaf budget is spent or no leaf can
// improve. rows and features choose the bagged row and column subsets.
func growTree(x [][]float64, resid []float64, rows []int, features []int, p Params) *Tree {
	g := &grower{x: x, resid: resid, features: features, p: p}

	t := &Tree{Nodes: []Node{g.leaf(rows)}}
	cands := []candidate{g.candidate(0, rows, 0)}
	leaves := 1

	for leaves < p.NumLeaves {
		best := -1
		for i := range cands {
			if !cands[i].ok {
				continue
			}
			if best == -1 || cands[i].split.gain > cands[best].split.gain {
				best = i
			}
		}
		if best == -1 {
			break
		}
		c := cands[best]
		cands = append(cands[:best], cands[best+1:]...)

		sp := c.split
		li := len(t.Nodes)
		t.Nodes = append(t.Nodes, g.leaf(sp.left), g.leaf(sp.right))

		nd := &t.Nodes[c.node]
		nd.Feature = sp.feature
		nd.Threshold = sp.threshold
		nd.Left = li
		nd.Right = li + 1
		nd.Gain = sp.gain

		cands = append(cands,
			g.candidate(li, sp.left, c.depth+1),
			g.candidate(li+1, sp.right, c.depth+1),
		)
		leaves++
	}
	return t
}

func (g *grower) leaf(rows []int) Node {
	var sum float64
	for _, r := range rows {
		sum += g.resid[r]
	}
	return Node{
		Feature: leafSentinel,
		Value:   leafWeight(sum, len(rows), g.p.LambdaL1, g.p.LambdaL2),
		Count:   len(rows),
	}
}

func (g *grower) candidate(node int, rows []int, depth int) candidate {
	c := candidate{node: node, rows: rows, depth: depth}
	if g.p.MaxDepth > 0 && depth >= g.p.MaxDepth {
		return c
	}
	if len(rows) < 2*g.p.MinChildSamples {
		return c
	}
	if sp, ok := g.bestSplit(rows); ok {
		c.ok = true
		c.split = sp
	}
	return c
}

// bestSplit scans every candidate feature with a sorted prefix sweep and
// keeps the boundary with the highest gain. Thresholds sit exactly on
// the left block's maximum value, so partitioning by <= reproduces the
// sweep's boundary bit for bit.
func (g *grower) bestSplit(rows []int) (split, bool) {
	var total float64
	for _, r := range rows {
		total += g.resid[r]
	}
	parent := splitScore(total, len(rows), g.p.LambdaL1, g.p.LambdaL2)

	var (
		best  split
		found bool
	)
	order := make([]int, len(rows))
	for _, feat := range g.features {
		copy(order, rows)
		f := feat
		// Ties sort by row index so the sweep is canonical regardless
		// of the incoming row order.
		sort.Slice(order, func(i, j int) bool {
			vi, vj := g.x[order[i]][f], g.x[order[j]][f]
			if vi != vj {
				return vi < vj
			}
			return order[i] < order[j]
		})

		var leftSum float64
		for k := 0; k < len(order)-1; k++ {
			leftSum += g.resid[order[k]]
			nl := k + 1
			nr := len(order) - nl
			if nl < g.p.MinChildSamples {
				continue
			}
			if nr < g.p.MinChildSamples {
				break
			}
			v := g.x[order[k]][f]
			if v == g.x[order[k+1]][f] {
				continue
			}
			gain := splitScore(leftSum, nl, g.p.LambdaL1, g.p.LambdaL2) +
				splitScore(total-leftSum, nr, g.p.LambdaL1, g.p.LambdaL2) -
				parent
			if gain <= 0 {
				continue
			}
			if !found || gain > best.gain {
				found = true
				best = split{feature: f, threshold: v, gain: gain}
			}
		}
	}
	if !found {
		return split{}, false
	}

	for _, r := range rows {
		if g.x[r][best.feature] <= best.threshold {
			best.left = append(best.left, r)
		} else {
			best.right = append(best.right, r)
		}
	}
	return best, true
}

// leafWeight is the regularized optimum for a leaf holding the given
// residual sum. The L1 penalty shrinks the numerator toward zero, the
// L2 penalty inflates the denominator.
func leafWeight(sum float64, n int, l1, l2 float64) float64 {
	return softThreshold(sum, l1) / (float64(n) + l2)
}

func splitScore(sum float64, n int, l1, l2 float64) float64 {
	t := softThreshold(sum, l1)
	return t * t / (float64(n) + l2)
}

func softThreshold(v, by float64) float64 {
	switch {
	case v > by:
		return v - by
	case v < -by:
		return v + by
	default:
		return 0
	}
}
