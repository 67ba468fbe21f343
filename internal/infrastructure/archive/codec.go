package archive

import (
	"math"
	"slices"
	"sort"

	"github.com/tinylib/msgp/msgp"

	"github.com/turtacn/charge-repository/internal/domain/charge"
	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// meta is the decoded "meta" entry.
type meta struct {
	shellMin  int
	shellMax  int
	traceable bool
}

func appendInt(b []byte, v int) []byte {
	if v >= 0 {
		return msgp.AppendUint64(b, uint64(v))
	}
	return msgp.AppendInt64(b, int64(v))
}

func encodeMeta(m meta) []byte {
	n := uint32(2)
	if m.traceable {
		n = 3
	}
	b := msgp.AppendArrayHeader(nil, n)
	b = appendInt(b, m.shellMin)
	b = appendInt(b, m.shellMax)
	if m.traceable {
		b = msgp.AppendBool(b, true)
	}
	return b
}

// encodeStore writes shell -> fingerprint -> bucket with every map's keys in
// ascending order.  Traceable buckets hold [charge, molid] pairs, others bare
// charges.
func encodeStore(s *charge.Store, traceable bool) []byte {
	shells := s.Shells()
	b := msgp.AppendMapHeader(nil, uint32(len(shells)))
	for _, shell := range shells {
		b = appendInt(b, shell)
		fps := s.Fingerprints(shell)
		b = msgp.AppendMapHeader(b, uint32(len(fps)))
		for _, fp := range fps {
			obs, _ := s.Observations(shell, fp)
			b = msgp.AppendString(b, string(fp))
			b = msgp.AppendArrayHeader(b, uint32(len(obs)))
			for _, o := range obs {
				if traceable {
					b = msgp.AppendArrayHeader(b, 2)
					b = msgp.AppendFloat64(b, o.Charge)
					b = appendInt(b, o.MolID)
				} else {
					b = msgp.AppendFloat64(b, o.Charge)
				}
			}
		}
	}
	return b
}

func encodeIso(idx charge.IsoIndex) []byte {
	ids := idx.MolIDs()
	b := msgp.AppendMapHeader(nil, uint32(len(ids)))
	for _, id := range ids {
		group, _ := idx.Group(id)
		b = appendInt(b, id)
		b = msgp.AppendArrayHeader(b, uint32(len(group)))
		for _, member := range group {
			b = appendInt(b, member)
		}
	}
	return b
}

func readInt(b []byte) (int, []byte, error) {
	switch msgp.NextType(b) {
	case msgp.UintType:
		u, rest, err := msgp.ReadUint64Bytes(b)
		if err != nil {
			return 0, b, err
		}
		if u > math.MaxInt32 {
			return 0, b, msgp.UintOverflow{Value: u, FailedBitsize: 32}
		}
		return int(u), rest, nil
	default:
		i, rest, err := msgp.ReadInt64Bytes(b)
		if err != nil {
			return 0, b, err
		}
		if i > math.MaxInt32 || i < math.MinInt32 {
			return 0, b, msgp.IntOverflow{Value: i, FailedBitsize: 32}
		}
		return int(i), rest, nil
	}
}

func readFloat(b []byte) (float64, []byte, error) {
	switch msgp.NextType(b) {
	case msgp.Float32Type:
		f, rest, err := msgp.ReadFloat32Bytes(b)
		return float64(f), rest, err
	case msgp.IntType, msgp.UintType:
		i, rest, err := readInt(b)
		return float64(i), rest, err
	default:
		return msgp.ReadFloat64Bytes(b)
	}
}

func corrupt(entry string, err error) *errors.AppError {
	return errors.New(errors.CodeArchiveRead, "corrupt archive entry").
		WithDetailf("entry=%s", entry).WithCause(err)
}

func trailing(entry string) *errors.AppError {
	return errors.New(errors.CodeArchiveRead, "trailing bytes after archive entry").
		WithDetailf("entry=%s", entry)
}

func decodeMeta(b []byte) (meta, error) {
	var m meta
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return m, corrupt(entryMeta, err)
	}
	if n != 2 && n != 3 {
		return m, corrupt(entryMeta, msgp.ArrayError{Wanted: 2, Got: n})
	}
	if m.shellMin, b, err = readInt(b); err != nil {
		return m, corrupt(entryMeta, err)
	}
	if m.shellMax, b, err = readInt(b); err != nil {
		return m, corrupt(entryMeta, err)
	}
	if n == 3 {
		if m.traceable, b, err = msgp.ReadBoolBytes(b); err != nil {
			return m, corrupt(entryMeta, err)
		}
	}
	if len(b) != 0 {
		return m, trailing(entryMeta)
	}
	if m.shellMin < 0 || m.shellMax < m.shellMin {
		return m, errors.New(errors.CodeArchiveRead, "invalid shell range in archive").
			WithDetailf("shell_min=%d shell_max=%d", m.shellMin, m.shellMax)
	}
	return m, nil
}

func decodeStore(entry string, b []byte, m meta) (*charge.Store, error) {
	s := charge.NewStore()
	nShells, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, corrupt(entry, err)
	}
	for i := uint32(0); i < nShells; i++ {
		var shell int
		if shell, b, err = readInt(b); err != nil {
			return nil, corrupt(entry, err)
		}
		if shell < m.shellMin || shell > m.shellMax {
			return nil, errors.New(errors.CodeArchiveRead, "shell outside archive range").
				WithDetailf("entry=%s shell=%d", entry, shell)
		}
		var nFps uint32
		if nFps, b, err = msgp.ReadMapHeaderBytes(b); err != nil {
			return nil, corrupt(entry, err)
		}
		for j := uint32(0); j < nFps; j++ {
			var key string
			if key, b, err = msgp.ReadStringBytes(b); err != nil {
				return nil, corrupt(entry, err)
			}
			fp, err := molecule.ParseFingerprint(key)
			if err != nil {
				return nil, corrupt(entry, err)
			}
			var obs []charge.Observation
			if obs, b, err = decodeBucket(b, m.traceable); err != nil {
				return nil, corrupt(entry, err)
			}
			if len(obs) == 0 {
				return nil, errors.New(errors.CodeArchiveRead, "empty bucket in archive").
					WithDetailf("entry=%s shell=%d fingerprint=%s", entry, shell, fp)
			}
			s.Merge(shell, fp, obs)
		}
	}
	if len(b) != 0 {
		return nil, trailing(entry)
	}
	s.Sort()
	return s, nil
}

func decodeBucket(b []byte, traceable bool) ([]charge.Observation, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	obs := make([]charge.Observation, 0, n)
	for k := uint32(0); k < n; k++ {
		var o charge.Observation
		if traceable {
			var pair uint32
			if pair, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
				return nil, b, err
			}
			if pair != 2 {
				return nil, b, msgp.ArrayError{Wanted: 2, Got: pair}
			}
			if o.Charge, b, err = readFloat(b); err != nil {
				return nil, b, err
			}
			if o.MolID, b, err = readInt(b); err != nil {
				return nil, b, err
			}
		} else if o.Charge, b, err = readFloat(b); err != nil {
			return nil, b, err
		}
		obs = append(obs, o)
	}
	return obs, b, nil
}

func decodeIso(entry string, b []byte) (charge.IsoIndex, error) {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, corrupt(entry, err)
	}
	groups := make(map[int][]int, n)
	for i := uint32(0); i < n; i++ {
		var id int
		if id, b, err = readInt(b); err != nil {
			return nil, corrupt(entry, err)
		}
		var size uint32
		if size, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
			return nil, corrupt(entry, err)
		}
		group := make([]int, 0, size)
		for k := uint32(0); k < size; k++ {
			var member int
			if member, b, err = readInt(b); err != nil {
				return nil, corrupt(entry, err)
			}
			group = append(group, member)
		}
		groups[id] = group
	}
	if len(b) != 0 {
		return nil, trailing(entry)
	}

	// Rebuild through NewIsoIndex so members share one sorted slice, and
	// reject indices that are not symmetric.
	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var distinct [][]int
	seen := make(map[int]bool, len(groups))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		g := groups[id]
		for _, member := range g {
			seen[member] = true
		}
		distinct = append(distinct, g)
	}
	idx := charge.NewIsoIndex(distinct)
	if len(idx) != len(groups) {
		return nil, errors.New(errors.CodeArchiveRead, "asymmetric isomorphism index").WithDetailf("entry=%s", entry)
	}
	for id, g := range groups {
		sorted := append([]int(nil), g...)
		sort.Ints(sorted)
		if !slices.Equal(sorted, idx[id]) {
			return nil, errors.New(errors.CodeArchiveRead, "asymmetric isomorphism index").
				WithDetailf("entry=%s molid=%d", entry, id)
		}
	}
	return idx, nil
}
