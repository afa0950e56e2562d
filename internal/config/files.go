package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Product is one monitored entry from the products file.
type Product struct {
	URL  string
	Name string
	Size string
}

// LoadProducts reads a products file with one `URL|Name|Size` entry per
// line (size optional). A missing file yields no products.
func LoadProducts(path string) ([]Product, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseProducts(f)
}

// ParseProducts parses product lines, skipping blanks and `#` comments.
// Malformed lines are reported together after the whole input is read.
func ParseProducts(r io.Reader) ([]Product, error) {
	var (
		products []Product
		bad      []string
	)
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "|")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			bad = append(bad, fmt.Sprintf("line %d", lineNum))
			continue
		}
		p := Product{URL: parts[0], Name: parts[1]}
		if len(parts) >= 3 {
			p.Size = parts[2]
		}
		products = append(products, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(bad) > 0 {
		return products, fmt.Errorf("malformed products entries: %s", strings.Join(bad, ", "))
	}
	return products, nil
}

// AppendProduct adds an entry to the products file.
func AppendProduct(path string, p Product) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	entry := p.URL + "|" + p.Name
	if p.Size != "" {
		entry += "|" + p.Size
	}
	_, err = fmt.Fprintln(f, entry)
	return err
}

// LoadBuyer reads `key: value` lines. Keys are returned as written; the
// checkout package resolves aliases. A missing file yields an empty map.
func LoadBuyer(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseBuyer(string(data)), nil
}

func ParseBuyer(data string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
