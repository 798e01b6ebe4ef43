package similarity

import (
	"math"
	"regexp"
	"strings"

	"github.com/adverant/nexus/inkcompare/internal/stats"
)

const (
	minNGram = 3
	maxNGram = 5
)

// mathReplacer maps math notation onto word tokens. Longer patterns come
// first so LaTeX commands and two-character operators win over their prefixes.
var mathReplacer = strings.NewReplacer(
	`\frac`, " fraction ",
	`\sqrt`, " square root ",
	`\times`, " times ",
	`\cdot`, " times ",
	`\div`, " divided by ",
	`\pm`, " plus or minus ",
	`\leq`, " less than or equal to ",
	`\geq`, " greater than or equal to ",
	`\neq`, " not equal to ",
	`\approx`, " approximately ",
	`\infty`, " infinity ",
	`\sum`, " sum ",
	`\int`, " integral ",
	`\pi`, " pi ",
	`\alpha`, " alpha ",
	`\beta`, " beta ",
	`\theta`, " theta ",
	`\left`, " ",
	`\right`, " ",
	`\(`, " ",
	`\)`, " ",
	`\[`, " ",
	`\]`, " ",
	"$$", " ",
	"$", " ",
	"<=", " less than or equal to ",
	">=", " greater than or equal to ",
	"!=", " not equal to ",
	"**", " power ",
	"+", " plus ",
	"=", " equals ",
	"×", " times ",
	"*", " times ",
	"÷", " divided by ",
	"/", " divided by ",
	"^", " power ",
	"√", " square root ",
	"≤", " less than or equal to ",
	"≥", " greater than or equal to ",
	"≠", " not equal to ",
	"≈", " approximately ",
	"<", " less than ",
	">", " greater than ",
	"%", " percent ",
	"π", " pi ",
	"∞", " infinity ",
	"∑", " sum ",
	"∫", " integral ",
	"−", " minus ",
	"{", " ",
	"}", " ",
)

var numericMinus = regexp.MustCompile(`(\d)\s*-\s*(\d)`)

// Preprocess lowercases text, rewrites math notation as words and collapses
// whitespace.
func Preprocess(text string) string {
	text = strings.ToLower(text)
	// applied twice so chained expressions like 1-2-3 are fully rewritten
	text = numericMinus.ReplaceAllString(text, "$1 minus $2")
	text = numericMinus.ReplaceAllString(text, "$1 minus $2")
	text = strings.ReplaceAll(text, " - ", " minus ")
	text = mathReplacer.Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

// LexicalSimilarity is the cosine similarity of character 3-5-gram TF-IDF
// vectors of the two preprocessed texts. Empty input scores 0 and identical
// input scores 1.
func LexicalSimilarity(a, b string) float64 {
	pa, pb := Preprocess(a), Preprocess(b)
	if pa == "" || pb == "" {
		return 0
	}
	if pa == pb {
		return 1
	}

	ga, gb := charNGrams(pa), charNGrams(pb)
	if len(ga) == 0 || len(gb) == 0 {
		return 0
	}

	// smoothed idf over the two-document corpus
	idf := func(term string) float64 {
		df := 0
		if _, ok := ga[term]; ok {
			df++
		}
		if _, ok := gb[term]; ok {
			df++
		}
		return math.Log(3.0/float64(1+df)) + 1
	}

	var dot, na, nb float64
	for term, tf := range ga {
		w := float64(tf) * idf(term)
		na += w * w
		if tfb, ok := gb[term]; ok {
			dot += w * float64(tfb) * idf(term)
		}
	}
	for term, tf := range gb {
		w := float64(tf) * idf(term)
		nb += w * w
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return stats.Clamp01(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func charNGrams(s string) map[string]int {
	runes := []rune(s)
	grams := make(map[string]int)
	for n := minNGram; n <= maxNGram; n++ {
		for i := 0; i+n <= len(runes); i++ {
			grams[string(runes[i:i+n])]++
		}
	}
	return grams
}
