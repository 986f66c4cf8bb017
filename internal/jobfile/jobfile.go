// Package jobfile loads crawl job definitions: a YAML (or JSON) mapping from
// topic to its list of modifiers.
package jobfile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
)

// Load reads the job file at path. A missing or unparsable file is returned
// as a *crawler.ConfigError. Malformed entries are skipped and reported in
// the returned slice of *crawler.TopicError.
func Load(path string) (crawler.CrawlJob, []error, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied job path
	if err != nil {
		return crawler.CrawlJob{}, nil, &crawler.ConfigError{Path: path, Err: err}
	}
	job, topicErrs, err := Parse(data)
	if err != nil {
		return crawler.CrawlJob{}, nil, &crawler.ConfigError{Path: path, Err: err}
	}
	return job, topicErrs, nil
}

// Parse decodes a job definition, keeping topic order as written.
func Parse(data []byte) (crawler.CrawlJob, []error, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return crawler.CrawlJob{}, nil, fmt.Errorf("decode job: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return crawler.CrawlJob{}, nil, errors.New("job definition is empty")
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return crawler.CrawlJob{}, nil, fmt.Errorf("job definition must be a mapping of topic to modifiers, got %s", kindName(doc.Kind))
	}

	var (
		job  crawler.CrawlJob
		errs []error
		seen = make(map[string]struct{}, len(doc.Content)/2)
	)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i], doc.Content[i+1]
		spec, err := parseEntry(key, value)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[spec.Topic]; dup {
			errs = append(errs, &crawler.TopicError{Topic: spec.Topic, Reason: fmt.Sprintf("duplicate topic (line %d)", key.Line)})
			continue
		}
		seen[spec.Topic] = struct{}{}
		job.Topics = append(job.Topics, spec)
	}
	return job, errs, nil
}

func parseEntry(key, value *yaml.Node) (crawler.TopicSpec, error) {
	if key.Kind != yaml.ScalarNode {
		return crawler.TopicSpec{}, &crawler.TopicError{Topic: fmt.Sprintf("line %d", key.Line), Reason: "topic must be a string"}
	}
	topic := normalize(key.Value)
	if err := validName(topic); err != nil {
		return crawler.TopicSpec{}, &crawler.TopicError{Topic: key.Value, Reason: err.Error()}
	}
	if value.Kind != yaml.SequenceNode {
		return crawler.TopicSpec{}, &crawler.TopicError{Topic: topic, Reason: fmt.Sprintf("modifiers must be a list, got %s", kindName(value.Kind))}
	}

	modifiers := make([]string, 0, len(value.Content))
	for _, item := range value.Content {
		if item.Kind != yaml.ScalarNode {
			return crawler.TopicSpec{}, &crawler.TopicError{Topic: topic, Reason: fmt.Sprintf("modifier at line %d must be a string", item.Line)}
		}
		m := normalize(item.Value)
		if m != "" {
			if err := validName(m); err != nil {
				return crawler.TopicSpec{}, &crawler.TopicError{Topic: topic, Reason: fmt.Sprintf("modifier %q: %v", item.Value, err)}
			}
		}
		modifiers = append(modifiers, m)
	}
	return crawler.TopicSpec{Topic: topic, Modifiers: modifiers}, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validName(s string) error {
	switch {
	case s == "":
		return errors.New("must not be empty")
	case s == "." || s == "..":
		return errors.New("must not be a relative path element")
	case strings.ContainsAny(s, `/\`):
		return errors.New("must not contain path separators")
	}
	return nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "list"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "nothing"
	}
}
