package magika

// Features holds the sampled regions of one input. Mid is nil when the
// config has mid_size 0 and the offset regions are nil when offset probes
// are disabled; Flatten relies on that, not on region lengths.
type Features struct {
	// FirstBlock is the raw, untrimmed beginning window. It is not part of
	// the model input.
	FirstBlock []byte

	Beg []int32
	Mid []int32
	End []int32

	Offset8000 []int32
	Offset8800 []int32
	Offset9000 []int32
	Offset9800 []int32
}

// Flatten concatenates the regions in model input order: beg, mid, end,
// then the four offset probes.
func (f *Features) Flatten() []int32 {
	n := len(f.Beg) + len(f.Mid) + len(f.End)
	if f.Offset8000 != nil {
		n += len(f.Offset8000) + len(f.Offset8800) + len(f.Offset9000) + len(f.Offset9800)
	}

	out := make([]int32, 0, n)
	out = append(out, f.Beg...)
	if f.Mid != nil {
		out = append(out, f.Mid...)
	}
	out = append(out, f.End...)
	if f.Offset8000 != nil {
		out = append(out, f.Offset8000...)
		out = append(out, f.Offset8800...)
		out = append(out, f.Offset9000...)
		out = append(out, f.Offset9800...)
	}
	return out
}

// ExtractFeatures samples the beginning, middle, end and (optionally) fixed
// offset regions of src as described by cfg. Main block reads are clamped
// to the source size, so the only possible error is an I/O failure.
func ExtractFeatures(src Source, cfg *ModelConfig) (*Features, error) {
	size := src.Size()
	block := min(size, int64(cfg.BlockSize))

	head, err := ReadExact(src, 0, block)
	if err != nil {
		return nil, err
	}
	tail, err := ReadExact(src, size-block, block)
	if err != nil {
		return nil, err
	}

	feats := &Features{FirstBlock: head}

	beg := trimLeadingSpace(head)
	if len(beg) > cfg.BegSize {
		beg = beg[:cfg.BegSize]
	}
	feats.Beg = padRegion(beg, 0, cfg.BegSize, cfg.PaddingToken)

	if cfg.MidSize > 0 {
		mid, err := readMiddle(src, int64(cfg.MidSize))
		if err != nil {
			return nil, err
		}
		feats.Mid = padRegion(mid, (cfg.MidSize-len(mid))/2, cfg.MidSize, cfg.PaddingToken)
	}

	end := trimTrailingSpace(tail)
	if len(end) > cfg.EndSize {
		end = end[len(end)-cfg.EndSize:]
	}
	feats.End = padRegion(end, cfg.EndSize-len(end), cfg.EndSize, cfg.PaddingToken)

	if cfg.UseInputsAtOffsets {
		probes := make([][]int32, len(probeOffsets))
		for i, off := range probeOffsets {
			probes[i], err = readProbe(src, off, cfg.PaddingToken)
			if err != nil {
				return nil, err
			}
		}
		feats.Offset8000 = probes[0]
		feats.Offset8800 = probes[1]
		feats.Offset9000 = probes[2]
		feats.Offset9800 = probes[3]
	}

	return feats, nil
}

// readMiddle returns the whole source when it fits in midSize, otherwise a
// centered window of exactly midSize bytes.
func readMiddle(src Source, midSize int64) ([]byte, error) {
	size := src.Size()
	if size <= midSize {
		return ReadExact(src, 0, size)
	}
	return ReadExact(src, (size-midSize)/2, midSize)
}

// readProbe never reads past the end of src: missing bytes become padding.
func readProbe(src Source, off int64, pad int32) ([]int32, error) {
	size := src.Size()
	if size <= off {
		return padRegion(nil, 0, offsetRegionSize, pad), nil
	}
	n := min(int64(offsetRegionSize), size-off)
	b, err := ReadExact(src, off, n)
	if err != nil {
		return nil, err
	}
	return padRegion(b, 0, offsetRegionSize, pad), nil
}

// padRegion lays b out in a slot of length size starting at prefix, filling
// every other element with pad. Bytes that do not fit are dropped.
func padRegion(b []byte, prefix, size int, pad int32) []int32 {
	out := make([]int32, size)
	for i := range out {
		out[i] = pad
	}
	if prefix < 0 {
		prefix = 0
	}
	for i := 0; i < len(b) && prefix+i < size; i++ {
		out[prefix+i] = int32(b[i])
	}
	return out
}

func isSpace(c byte) bool {
	switch c {
	case '\t', '\n', '\v', '\f', '\r', ' ':
		return true
	}
	return false
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && isSpace(b[i]) {
		i++
	}
	return b[i:]
}

func trimTrailingSpace(b []byte) []byte {
	i := len(b)
	for i > 0 && isSpace(b[i-1]) {
		i--
	}
	return b[:i]
}
