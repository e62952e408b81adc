package runner

import (
	"bufio"
	"bytes"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"strings"
	"sync"
	"text/template"

	"github.com/google/uuid"
)

// TemplateEngine expands template expressions in target URLs and
// bodies, one expansion per admitted request.
type TemplateEngine struct {
	fileCache map[string][]string
	mu        sync.RWMutex
	funcMap   template.FuncMap
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		fileCache: make(map[string][]string),
	}

	e.funcMap = template.FuncMap{
		"randomInt":     e.randomInt,
		"randomChoice":  e.randomChoice,
		"randomLine":    e.randomLine,
		"randomName":    randomName,
		"randomAddress": randomAddress,
		"graphID":       graphID,
		"uuid":          randomUUID,
	}

	return e
}

// Expand parses and executes text as a template. Text without
// template syntax comes back unchanged.
func (e *TemplateEngine) Expand(name, text string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	t, err := template.New(name).Funcs(e.funcMap).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing template %q: %w", name, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, nil); err != nil {
		return "", fmt.Errorf("executing template %q: %w", name, err)
	}
	return buf.String(), nil
}

// --- Functions ---

func (e *TemplateEngine) randomInt(min, max int) int {
	return rand.Intn(max-min) + min
}

func randomUUID() string {
	return uuid.New().String()
}

func (e *TemplateEngine) randomChoice(choices ...string) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[rand.Intn(len(choices))]
}

func (e *TemplateEngine) randomLine(filename string) (string, error) {
	e.mu.RLock()
	lines, ok := e.fileCache[filename]
	e.mu.RUnlock()

	if !ok {
		e.mu.Lock()
		if lines, ok = e.fileCache[filename]; !ok {
			content, err := os.ReadFile(filename)
			if err != nil {
				e.mu.Unlock()
				return "", fmt.Errorf("failed to read file %q: %w", filename, err)
			}

			scanner := bufio.NewScanner(bytes.NewReader(content))
			for scanner.Scan() {
				if line := strings.TrimSpace(scanner.Text()); line != "" {
					lines = append(lines, line)
				}
			}
			e.fileCache[filename] = lines
		}
		e.mu.Unlock()
	}

	if len(lines) == 0 {
		return "", nil
	}
	return lines[rand.Intn(len(lines))], nil
}

// --- Synthetic data ---

// graphID returns a random nine-digit id.
func graphID() int {
	return rand.Intn(900000000) + 100000000
}

var (
	nameStarts = []string{"Ae", "Di", "Mo", "Fam"}
	nameEnds   = []string{"dar", "kil", "glar", "tres"}
)

func randomName() string {
	return nameStarts[rand.Intn(len(nameStarts))] + nameEnds[rand.Intn(len(nameEnds))]
}

var (
	addrStreets  = []string{"Fake", "Phony", "Bogus"}
	addrSuffixes = []string{"St", "Ave", "Rd"}
	addrUnits    = []string{"Apt", "Suite", "Unit"}

	addrCities = []string{"Toronto", "Halifax", "Calgary", "Vancouver"}
	addrProvs  = []string{"ON", "NS", "AB", "BC"}
	addrPostal = []string{"M5A1A1", "B3J2T2", "T2E7P5", "V6C3N3"}
	addrPhone  = []string{"416", "902", "403", "604"}
)

// randomAddress returns a urlencoded fake Canadian address, suitable
// for form bodies.
func randomAddress() string {
	v := url.Values{}
	v.Set("address_1", fmt.Sprintf("%d %s %s",
		rand.Intn(9900)+100,
		addrStreets[rand.Intn(len(addrStreets))],
		addrSuffixes[rand.Intn(len(addrSuffixes))],
	))
	if rand.Intn(2) == 1 {
		v.Set("address_2", fmt.Sprintf("%s %d",
			addrUnits[rand.Intn(len(addrUnits))],
			rand.Intn(998)+1,
		))
	}

	city := rand.Intn(len(addrCities))
	v.Set("city", addrCities[city])
	v.Set("province", addrProvs[city])
	v.Set("postal_code", addrPostal[city])
	v.Set("phone", "1"+addrPhone[city]+"5551212")

	return v.Encode()
}
