package audiocore

// mixInto adds frames of interleaved src into interleaved dst, converting the
// channel layout on the way:
//   - equal channel counts are summed sample by sample
//   - a mono output takes ratio*ch0 + (1-ratio)*ch1 of the source
//   - a mono source is duplicated to every output channel
//   - otherwise the first min(srcCh, dstCh) channels are carried over
func mixInto(dst []float32, dstCh int, src []float32, srcCh, frames int, ratio float32) {
	switch {
	case srcCh == dstCh:
		n := frames * dstCh
		for i := range n {
			dst[i] += src[i]
		}
	case dstCh == 1:
		inv := 1 - ratio
		for f := range frames {
			base := f * srcCh
			dst[f] += ratio*src[base] + inv*src[base+1]
		}
	case srcCh == 1:
		for f := range frames {
			s := src[f]
			frame := dst[f*dstCh : (f+1)*dstCh]
			for c := range frame {
				frame[c] += s
			}
		}
	default:
		n := min(srcCh, dstCh)
		for f := range frames {
			for c := range n {
				dst[f*dstCh+c] += src[f*srcCh+c]
			}
		}
	}
}

// clampSamples bounds every sample to [lo, hi].
func clampSamples(buf []float32, lo, hi float32) {
	for i, s := range buf {
		if s < lo {
			buf[i] = lo
		} else if s > hi {
			buf[i] = hi
		}
	}
}
