package testutil

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
)

// maxLabellings bounds the brute-force search of the fake solver.
const maxLabellings = 2_000_000

// FakeDreadnaut is an in-process canonical labeller that understands the
// subset of the dreadnaut command language the canonicalizer emits.  The
// canonical form is the cell-respecting labelling whose adjacency matrix is
// lexicographically smallest, found by exhaustive search, so it is only
// suitable for small graphs.
type FakeDreadnaut struct {
	calls atomic.Int64
	// Err, when set, is returned by every Exchange.
	Err error
}

// NewFakeDreadnaut returns a ready fake.
func NewFakeDreadnaut() *FakeDreadnaut {
	return &FakeDreadnaut{}
}

// Exchange answers request the way dreadnaut would.
func (f *FakeDreadnaut) Exchange(ctx context.Context, request string) (string, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.Err != nil {
		return "", f.Err
	}
	out, err := Respond(request)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Calls returns how many exchanges were attempted.
func (f *FakeDreadnaut) Calls() int {
	return int(f.calls.Load())
}

// ServeFakeDreadnaut runs a line-oriented solver loop: every non-empty line
// of r is a request, answered on w; a "q" line ends the loop.  Malformed
// requests get an answer without statistics so the caller sees a protocol
// failure instead of hanging.
func ServeFakeDreadnaut(r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	bw := bufio.NewWriter(w)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "q":
			return bw.Flush()
		}
		out, err := Respond(line)
		if err != nil {
			out = fmt.Sprintf("fake dreadnaut: %v\nEND\n", err)
		}
		if _, err := bw.WriteString(out); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	return sc.Err()
}

type fakeRequest struct {
	n     int
	adj   [][]bool
	cells [][]int
}

// Respond computes the full textual answer to one request.
func Respond(request string) (string, error) {
	req, err := parseFakeRequest(request)
	if err != nil {
		return "", err
	}
	order, err := canonicalOrder(req)
	if err != nil {
		return "", err
	}

	inv := make([]int, req.n)
	for i, v := range order {
		inv[v] = i
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "(1 orbits; grpsize=1; 0 gens; 1 nodes; maxlev=1)\n")
	fmt.Fprintf(&sb, "cpu time = 0.00 seconds\n")
	for i, v := range order {
		if i > 0 && i%10 == 0 {
			sb.WriteByte('\n')
		}
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(v))
	}
	sb.WriteByte('\n')
	for k := 0; k < req.n; k++ {
		var nbrs []int
		for v := 0; v < req.n; v++ {
			if req.adj[order[k]][v] {
				nbrs = append(nbrs, inv[v])
			}
		}
		sort.Ints(nbrs)
		fmt.Fprintf(&sb, "%3d :", k)
		for _, v := range nbrs {
			fmt.Fprintf(&sb, " %d", v)
		}
		sb.WriteString(";\n")
	}
	sb.WriteString("END\n")
	return sb.String(), nil
}

func parseFakeRequest(request string) (*fakeRequest, error) {
	s := strings.TrimSpace(request)
	if !strings.HasPrefix(s, "n=") {
		return nil, fmt.Errorf("request must start with n=: %q", request)
	}
	s = s[2:]
	nStr, rest, ok := strings.Cut(s, " g ")
	if !ok {
		return nil, fmt.Errorf("missing graph section: %q", request)
	}
	n, err := strconv.Atoi(strings.TrimSpace(nStr))
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("bad node count %q", nStr)
	}
	edgeStr, rest, ok := strings.Cut(rest, ".")
	if !ok {
		return nil, fmt.Errorf("unterminated graph section: %q", request)
	}

	req := &fakeRequest{n: n, adj: make([][]bool, n)}
	for i := range req.adj {
		req.adj[i] = make([]bool, n)
	}
	for _, e := range strings.Split(edgeStr, ";") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		us, vs, ok := strings.Cut(e, ":")
		if !ok {
			return nil, fmt.Errorf("bad edge %q", e)
		}
		u, err1 := strconv.Atoi(strings.TrimSpace(us))
		v, err2 := strconv.Atoi(strings.TrimSpace(vs))
		if err1 != nil || err2 != nil || u < 0 || v < 0 || u >= n || v >= n || u == v {
			return nil, fmt.Errorf("bad edge %q", e)
		}
		req.adj[u][v] = true
		req.adj[v][u] = true
	}

	open := strings.Index(rest, "f=[")
	end := strings.Index(rest, "]")
	if open < 0 || end < open {
		return nil, fmt.Errorf("missing partition: %q", request)
	}
	seen := make([]bool, n)
	for _, cellStr := range strings.Split(rest[open+3:end], "|") {
		var cell []int
		for _, tok := range strings.Split(cellStr, ",") {
			v, err := strconv.Atoi(strings.TrimSpace(tok))
			if err != nil || v < 0 || v >= n || seen[v] {
				return nil, fmt.Errorf("bad partition entry %q", tok)
			}
			seen[v] = true
			cell = append(cell, v)
		}
		req.cells = append(req.cells, cell)
	}
	for v, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("node %d missing from partition", v)
		}
	}
	return req, nil
}

// canonicalOrder tries every labelling that keeps the cells in place and
// returns the one with the smallest upper-triangle adjacency bitstring.
func canonicalOrder(req *fakeRequest) ([]int, error) {
	total := 1
	for _, cell := range req.cells {
		for k := 2; k <= len(cell); k++ {
			total *= k
			if total > maxLabellings {
				return nil, fmt.Errorf("graph too symmetric for the fake solver")
			}
		}
	}

	perms := make([][][]int, len(req.cells))
	for i, cell := range req.cells {
		perms[i] = permutations(cell)
	}

	var best, bestKey []int
	order := make([]int, 0, req.n)
	var walk func(cell int)
	walk = func(cell int) {
		if cell == len(perms) {
			key := adjacencyKey(req, order)
			if best == nil || lessInts(key, bestKey) {
				best = append([]int(nil), order...)
				bestKey = key
			}
			return
		}
		base := len(order)
		for _, p := range perms[cell] {
			order = append(order[:base], p...)
			walk(cell + 1)
		}
		order = order[:base]
	}
	walk(0)
	return best, nil
}

func adjacencyKey(req *fakeRequest, order []int) []int {
	key := make([]int, 0, req.n*(req.n-1)/2)
	for i := 0; i < req.n; i++ {
		for j := i + 1; j < req.n; j++ {
			bit := 0
			if req.adj[order[i]][order[j]] {
				bit = 1
			}
			key = append(key, bit)
		}
	}
	return key
}

func lessInts(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func permutations(items []int) [][]int {
	if len(items) <= 1 {
		return [][]int{append([]int(nil), items...)}
	}
	var out [][]int
	for i := range items {
		rest := make([]int, 0, len(items)-1)
		rest = append(rest, items[:i]...)
		rest = append(rest, items[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]int{items[i]}, p...))
		}
	}
	return out
}
