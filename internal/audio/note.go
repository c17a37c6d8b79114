package audio

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnknownNote     = errors.New("unknown note")
	ErrUnknownDuration = errors.New("unknown duration")
)

// Note is a parsed pitch. Key is the MIDI key number; raw frequencies that do
// not land on a key keep the nearest one. Frequencies outside the MIDI key
// range are rejected.
type Note struct {
	Name string
	Key  int
	Freq float64
}

var pitchClass = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// ParseNote parses scientific pitch notation ("C4", "F#3", "Bb-1") or a raw
// frequency in Hz ("440").
func ParseNote(s string) (Note, error) {
	name := strings.TrimSpace(s)
	if name == "" {
		return Note{}, errors.Wrap(ErrUnknownNote, "empty note")
	}
	if hz, err := strconv.ParseFloat(name, 64); err == nil {
		if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
			return Note{}, errors.Wrapf(ErrUnknownNote, "%q", s)
		}
		key := int(math.Round(69 + 12*math.Log2(hz/440)))
		if key < 0 || key > 127 {
			return Note{}, errors.Wrapf(ErrUnknownNote, "%q out of MIDI range", s)
		}
		return Note{Name: name, Key: key, Freq: hz}, nil
	}

	pc, ok := pitchClass[strings.ToUpper(name[:1])[0]]
	if !ok {
		return Note{}, errors.Wrapf(ErrUnknownNote, "%q", s)
	}
	rest := name[1:]
	for len(rest) > 0 && (rest[0] == '#' || rest[0] == 'b') {
		if rest[0] == '#' {
			pc++
		} else {
			pc--
		}
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return Note{}, errors.Wrapf(ErrUnknownNote, "%q", s)
	}
	key := (octave+1)*12 + pc
	if key < 0 || key > 127 {
		return Note{}, errors.Wrapf(ErrUnknownNote, "%q out of MIDI range", s)
	}
	return Note{Name: name, Key: key, Freq: KeyToFreq(key)}, nil
}

// KeyToFreq converts a MIDI key to equal-tempered frequency (A4 = 440 Hz).
func KeyToFreq(key int) float64 {
	return 440 * math.Pow(2, float64(key-69)/12)
}

// Musical duration names.
const (
	Whole         = "1n"
	Half          = "2n"
	Quarter       = "4n"
	Eighth        = "8n"
	Sixteenth     = "16n"
	HalfDotted    = "2n."
	QuarterDotted = "4n."
	EighthDotted  = "8n."
	EighthTriplet = "8t"
	QuarterTriple = "4t"
)

// ParseDuration converts musical notation ("4n", "8n.", "8t") into beats,
// where one beat is a quarter note.
func ParseDuration(s string) (float64, error) {
	n := strings.TrimSpace(s)
	if len(n) < 2 {
		return 0, errors.Wrapf(ErrUnknownDuration, "%q", s)
	}
	mult := 1.0
	switch {
	case strings.HasSuffix(n, "n."):
		mult = 1.5
		n = strings.TrimSuffix(n, "n.")
	case strings.HasSuffix(n, "t"):
		mult = 2.0 / 3.0
		n = strings.TrimSuffix(n, "t")
	case strings.HasSuffix(n, "n"):
		n = strings.TrimSuffix(n, "n")
	default:
		return 0, errors.Wrapf(ErrUnknownDuration, "%q", s)
	}
	div, err := strconv.Atoi(n)
	if err != nil || div <= 0 || div&(div-1) != 0 {
		return 0, errors.Wrapf(ErrUnknownDuration, "%q", s)
	}
	return 4 / float64(div) * mult, nil
}
