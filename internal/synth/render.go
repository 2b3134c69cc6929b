package synth

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"math/rand/v2"
	"os"
	"sync"
	"unicode"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const leftMargin = 10

var (
	backgroundColors = []color.NRGBA{
		{255, 255, 255, 255}, // white
		{255, 250, 205, 255}, // lemon chiffon
		{224, 238, 255, 255}, // pale blue
		{235, 235, 235, 255}, // light gray
		{245, 245, 220, 255}, // beige
	}
	textColors = []color.NRGBA{
		{0, 0, 0, 255},
		{0, 0, 139, 255},
		{139, 0, 0, 255},
		{0, 100, 0, 255},
		{64, 64, 64, 255},
	}
	dotColor = color.NRGBA{211, 211, 211, 255}
)

// FontRenderer draws pages with TrueType fonts. Parsed fonts and faces are
// cached; it is safe for concurrent use.
type FontRenderer struct {
	mu    sync.Mutex
	fonts map[string]*opentype.Font
	faces map[faceKey]font.Face
}

type faceKey struct {
	path string
	size int
}

// NewFontRenderer creates a renderer.
func NewFontRenderer() *FontRenderer {
	return &FontRenderer{
		fonts: make(map[string]*opentype.Font),
		faces: make(map[faceKey]font.Face),
	}
}

func (r *FontRenderer) face(path string, size int) (font.Face, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := faceKey{path: path, size: size}
	if f, ok := r.faces[key]; ok {
		return f, nil
	}

	parsed, ok := r.fonts[path]
	if !ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read font: %w", err)
		}
		parsed, err = opentype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse font %s: %w", path, err)
		}
		r.fonts[path] = parsed
	}

	f, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create face %s@%d: %w", path, size, err)
	}
	r.faces[key] = f
	return f, nil
}

// Render draws the page lines from the top-left margin and returns one box
// per non-space glyph, spanning the glyph advance and the line height.
func (r *FontRenderer) Render(page Page) (image.Image, []Box, error) {
	face, err := r.face(page.Font.Path, page.Size)
	if err != nil {
		return nil, nil, err
	}

	bg := backgroundColors[page.Block%len(backgroundColors)]
	fg := textColors[(page.Block%len(backgroundColors)+1)%len(textColors)]

	img := imaging.New(page.Width, page.Height(), bg)
	if rng := pageRand(page); rng.IntN(2) == 0 {
		for x := 0; x < page.Width; x += 10 {
			for y := 0; y < page.Height(); y += 10 {
				img.SetNRGBA(x, y, dotColor)
			}
		}
	}

	ascent := face.Metrics().Ascent.Ceil()
	d := &font.Drawer{Dst: img, Src: image.NewUniform(fg), Face: face}

	var boxes []Box
	lh := page.LineHeight()
	for j, line := range page.Lines {
		top := j * lh
		d.Dot = fixed.P(leftMargin, top+ascent)
		for _, ch := range line {
			start := d.Dot.X
			d.DrawString(string(ch))
			if unicode.IsSpace(ch) {
				continue
			}
			left, right := start.Round(), d.Dot.X.Round()
			if right <= left {
				right = left + 1
			}
			boxes = append(boxes, Box{Char: ch, Left: left, Top: top, Right: right, Bottom: top + lh})
		}
	}
	return img, boxes, nil
}

// pageRand is seeded from the page identity so re-rendering a page after a
// resume yields the same image.
func pageRand(page Page) *rand.Rand {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%d/%d", page.Font.Name, page.Size, page.Block)
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed>>1))
}
