package fontchanger

// Font tables map ASCII (and a few lookalike Cyrillic letters) onto Unicode
// styled alphabets. Generated ranges follow the Unicode blocks; squared has
// no contiguous lowercase block and is spelled out.

func rangeMap(dst map[rune]rune, from rune, base rune, count int) {
	for i := 0; i < count; i++ {
		dst[base+rune(i)] = from + rune(i)
	}
}

func buildFontMaps() map[string]map[rune]rune {
	fonts := make(map[string]map[rune]rune)

	greek := make(map[rune]rune)
	rangeMap(greek, 0x0391, 'A', 25) // Α..Ω covers A..Y
	rangeMap(greek, 0x03B1, 'a', 25)
	fonts["greek"] = greek

	math := make(map[rune]rune)
	rangeMap(math, 0x1D400, 'A', 26) // mathematical bold
	rangeMap(math, 0x1D41A, 'a', 26)
	rangeMap(math, 0x1D7CE, '0', 10)
	fonts["mathematical"] = math

	mono := make(map[rune]rune)
	rangeMap(mono, 0x1D670, 'A', 26) // mathematical monospace
	rangeMap(mono, 0x1D68A, 'a', 26)
	rangeMap(mono, 0x1D7F6, '0', 10)
	fonts["monospace"] = mono

	circled := make(map[rune]rune)
	rangeMap(circled, 0x24B6, 'A', 26) // Ⓐ..Ⓩ
	rangeMap(circled, 0x24D0, 'a', 26)
	rangeMap(circled, 0x2460, '1', 9) // ①..⑨
	circled['0'] = '⓪'
	fonts["circled"] = circled

	squared := make(map[rune]rune)
	rangeMap(squared, 0x1F110, 'A', 26) // 🄐.. parenthesized
	rangeMap(squared, 0x1F130, 'a', 26) // 🄰.. squared
	fonts["squared"] = squared

	fraktur := make(map[rune]rune)
	rangeMap(fraktur, 0x1D504, 'A', 26)
	rangeMap(fraktur, 0x1D51E, 'a', 26)
	fonts["fraktur"] = fraktur

	return fonts
}

// cyrillicLookalikes substitutes visually close Greek letters for the
// Cyrillic ones so Russian text changes style too.
var cyrillicLookalikes = map[rune]rune{
	'А': 'Α', 'В': 'Β', 'Е': 'Ε', 'З': 'Ζ', 'И': 'Ι', 'К': 'Κ',
	'М': 'Μ', 'Н': 'Ν', 'О': 'Ο', 'Р': 'Ρ', 'С': 'Σ', 'Т': 'Τ',
	'У': 'Υ', 'Х': 'Χ', 'Ь': 'ʹ',
	'а': 'α', 'в': 'β', 'е': 'ε', 'з': 'ζ', 'и': 'ι', 'к': 'κ',
	'м': 'μ', 'н': 'ν', 'о': 'ο', 'р': 'ρ', 'с': 'σ', 'т': 'τ',
	'у': 'υ', 'х': 'χ', 'ь': 'ʹ',
}

// convert rewrites text through the font map, passing unknown runes through
// unchanged.
func convert(text string, font map[rune]rune) string {
	out := make([]rune, 0, len(text))
	for _, r := range text {
		if m, ok := font[r]; ok {
			out = append(out, m)
		} else if m, ok := cyrillicLookalikes[r]; ok {
			out = append(out, m)
		} else {
			out = append(out, r)
		}
	}
	return string(out)
}
