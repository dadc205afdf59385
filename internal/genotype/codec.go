package genotype

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Encoding string

const (
	EncodingText   Encoding = "text"
	EncodingBase64 Encoding = "base64"

	textSeparator = ","
)

var ErrUnknownEncoding = errors.New("unknown genotype encoding")

func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(strings.TrimSpace(strings.ToLower(name))) {
	case "", EncodingText:
		return EncodingText, nil
	case EncodingBase64:
		return EncodingBase64, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
}

// Encode serializes values without loss of precision.
func Encode(values []float64, enc Encoding) (string, error) {
	switch enc {
	case "", EncodingText:
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return strings.Join(parts, textSeparator), nil
	case EncodingBase64:
		buf := make([]byte, 8*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
		}
		return base64.StdEncoding.EncodeToString(buf), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, string(enc))
	}
}

func Decode(raw string, enc Encoding) ([]float64, error) {
	switch enc {
	case "", EncodingText:
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return []float64{}, nil
		}
		parts := strings.Split(raw, textSeparator)
		out := make([]float64, len(parts))
		for i, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, fmt.Errorf("parse genotype value %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case EncodingBase64:
		buf, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("decode base64 genotype: %w", err)
		}
		if len(buf)%8 != 0 {
			return nil, fmt.Errorf("decode base64 genotype: %d bytes is not a multiple of 8", len(buf))
		}
		out := make([]float64, len(buf)/8)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, string(enc))
	}
}
