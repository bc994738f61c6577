package broker

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// FilterSet holds validated subscription filters in a prefix tree so inbound
// topics can be checked against the active subscriptions.
type FilterSet struct {
	root *filterNode
	size int
	mu   sync.RWMutex
}

type filterNode struct {
	isEnd    bool
	children map[string]*filterNode
}

func newFilterNode() *filterNode {
	return &filterNode{children: make(map[string]*filterNode)}
}

// NewFilterSet builds a set from the given filters, failing on the first
// invalid one.
func NewFilterSet(filters ...string) (*FilterSet, error) {
	fs := &FilterSet{root: newFilterNode()}
	for _, filter := range filters {
		if err := fs.Add(filter); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

// Add inserts a filter. Adding an existing filter is a no-op.
func (fs *FilterSet) Add(filter string) error {
	if err := ValidateTopicFilter(filter); err != nil {
		return fmt.Errorf("invalid topic filter %q: %w", filter, err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	current := fs.root
	for _, segment := range strings.Split(filter, "/") {
		next, exists := current.children[segment]
		if !exists {
			next = newFilterNode()
			current.children[segment] = next
		}
		current = next
	}
	if !current.isEnd {
		current.isEnd = true
		fs.size++
	}
	return nil
}

// Match reports whether topic matches at least one filter in the set.
// Topic names containing wildcards never match.
func (fs *FilterSet) Match(topic string) bool {
	if err := ValidateTopicName(topic); err != nil {
		return false
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return matchNode(fs.root, strings.Split(topic, "/"), 0)
}

func matchNode(node *filterNode, segments []string, depth int) bool {
	// "#" also matches the parent level: "a/#" matches "a".
	if wildcard, ok := node.children["#"]; ok && wildcard.isEnd {
		// Topics starting with "$" are not matched by a leading wildcard.
		if depth > 0 || !strings.HasPrefix(segments[0], "$") {
			return true
		}
	}

	if depth == len(segments) {
		return node.isEnd
	}

	if child, ok := node.children[segments[depth]]; ok {
		if matchNode(child, segments, depth+1) {
			return true
		}
	}

	if child, ok := node.children["+"]; ok {
		if depth == 0 && strings.HasPrefix(segments[0], "$") {
			return false
		}
		return matchNode(child, segments, depth+1)
	}

	return false
}

// Filters returns the filters in the set, sorted.
func (fs *FilterSet) Filters() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	filters := make([]string, 0, fs.size)
	collectFilters(fs.root, "", true, &filters)
	sort.Strings(filters)
	return filters
}

// collectFilters recursively collects all filters
func collectFilters(node *filterNode, path string, root bool, out *[]string) {
	if node.isEnd && !root {
		*out = append(*out, path)
	}
	for segment, child := range node.children {
		next := segment
		if !root {
			next = path + "/" + segment
		}
		collectFilters(child, next, false, out)
	}
}

// Len returns the number of filters in the set.
func (fs *FilterSet) Len() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.size
}

// ValidateTopicFilter validates a subscription topic filter
func ValidateTopicFilter(topic string) error {
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}

	segments := strings.Split(topic, "/")
	for i, segment := range segments {
		// Allow empty segments for leading/trailing slashes
		if segment == "" && i != 0 && i != len(segments)-1 {
			return fmt.Errorf("empty segment not allowed in middle of topic")
		}

		if strings.Contains(segment, "#") {
			if segment != "#" {
				return fmt.Errorf("# wildcard must occupy entire segment")
			}
			if i != len(segments)-1 {
				return fmt.Errorf("# wildcard must be the last segment")
			}
		}

		if strings.Contains(segment, "+") && segment != "+" {
			return fmt.Errorf("+ wildcard must occupy entire segment")
		}
	}

	return nil
}

// ValidateTopicName validates a concrete topic as delivered by the broker
func ValidateTopicName(topic string) error {
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}

	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("wildcards not allowed in topic names")
	}

	return nil
}
