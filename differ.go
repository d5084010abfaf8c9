package raffle

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// ChangeKind classifies a changed path
type ChangeKind string

const (
	ChangeModified ChangeKind = "modified"
	ChangeAdded    ChangeKind = "added"   // path exists only in current
	ChangeRemoved  ChangeKind = "removed" // path exists only in original
)

// FieldChange is the before/after pair of one changed path
type FieldChange struct {
	Original any        `json:"original"`
	Current  any        `json:"current"`
	Kind     ChangeKind `json:"kind"`
}

// Diff maps dot-joined field paths to their changes
type Diff map[string]FieldChange

// Paths returns the changed paths in sorted order
func (d Diff) Paths() []string {
	paths := make([]string, 0, len(d))
	for p := range d {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// DifferOption configures a ConfigDiffer
type DifferOption func(*ConfigDiffer)

// WithKeyedArrays diffs arrays of objects element by element when every element
// carries a distinct scalar key field. Element paths look like field[key=value].sub.
func WithKeyedArrays(key string) DifferOption {
	return func(d *ConfigDiffer) {
		d.arrayKey = key
	}
}

// ConfigDiffer computes the changed-field map between two nested configurations.
//
// Nested objects are walked over the union of both key sets. Leaves compare by
// value with numbers normalised, so 5 and 5.0 are equal. Arrays compare as a
// whole unless keyed arrays are enabled and the array qualifies.
type ConfigDiffer struct {
	arrayKey string
}

// NewConfigDiffer creates a differ
func NewConfigDiffer(opts ...DifferOption) *ConfigDiffer {
	d := &ConfigDiffer{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DiffConfigs diffs two configurations with whole-array comparison
func DiffConfigs(original, current map[string]any) Diff {
	return NewConfigDiffer().Diff(original, current)
}

// Diff returns every changed path between original and current
func (d *ConfigDiffer) Diff(original, current map[string]any) Diff {
	out := make(Diff)
	d.diffMaps("", original, current, out)
	return out
}

// DiffValues diffs two arbitrary values after normalising them through JSON,
// so structs can be compared by their serialized field names
func (d *ConfigDiffer) DiffValues(original, current any) (Diff, error) {
	o, err := toObject(original)
	if err != nil {
		return nil, fmt.Errorf("normalize original: %w", err)
	}
	c, err := toObject(current)
	if err != nil {
		return nil, fmt.Errorf("normalize current: %w", err)
	}
	return d.Diff(o, c), nil
}

func (d *ConfigDiffer) diffMaps(prefix string, original, current map[string]any, out Diff) {
	keys := make(map[string]struct{}, len(original)+len(current))
	for k := range original {
		keys[k] = struct{}{}
	}
	for k := range current {
		keys[k] = struct{}{}
	}

	for k := range keys {
		path := joinPath(prefix, k)
		o, inOriginal := original[k]
		c, inCurrent := current[k]

		switch {
		case !inOriginal:
			out[path] = FieldChange{Current: c, Kind: ChangeAdded}
		case !inCurrent:
			out[path] = FieldChange{Original: o, Kind: ChangeRemoved}
		default:
			d.diffValue(path, o, c, out)
		}
	}
}

func (d *ConfigDiffer) diffValue(path string, original, current any, out Diff) {
	om, oIsMap := original.(map[string]any)
	cm, cIsMap := current.(map[string]any)
	if oIsMap && cIsMap {
		d.diffMaps(path, om, cm, out)
		return
	}

	oa, oIsArray := original.([]any)
	ca, cIsArray := current.([]any)
	if oIsArray && cIsArray && d.arrayKey != "" && d.diffKeyedArray(path, oa, ca, out) {
		return
	}

	if !equalValues(original, current) {
		out[path] = FieldChange{Original: original, Current: current, Kind: ChangeModified}
	}
}

// diffKeyedArray reports false when the arrays do not qualify for keyed diffing
func (d *ConfigDiffer) diffKeyedArray(path string, original, current []any, out Diff) bool {
	oKeys, ok := d.elementKeys(original)
	if !ok {
		return false
	}
	cKeys, ok := d.elementKeys(current)
	if !ok {
		return false
	}

	// Common elements must keep their relative order and come before every added
	// element, since ApplyDiff appends additions at the end.
	var oCommon, cCommon []string
	for _, k := range oKeys {
		if slices.Contains(cKeys, k) {
			oCommon = append(oCommon, k)
		}
	}
	for _, k := range cKeys {
		if slices.Contains(oKeys, k) {
			cCommon = append(cCommon, k)
		}
	}
	if !slices.Equal(oCommon, cCommon) || !slices.Equal(cKeys[:len(cCommon)], cCommon) {
		return false
	}

	for i, k := range oKeys {
		if !slices.Contains(cKeys, k) {
			out[d.elementPath(path, k)] = FieldChange{Original: original[i], Kind: ChangeRemoved}
		}
	}
	for i, k := range cKeys {
		j := slices.Index(oKeys, k)
		if j < 0 {
			out[d.elementPath(path, k)] = FieldChange{Current: current[i], Kind: ChangeAdded}
			continue
		}
		d.diffMaps(d.elementPath(path, k), original[j].(map[string]any), current[i].(map[string]any), out)
	}
	return true
}

// elementKeys returns the key of every element, or false when an element is not
// an object, lacks a scalar key, or repeats one
func (d *ConfigDiffer) elementKeys(arr []any) ([]string, bool) {
	keys := make([]string, 0, len(arr))
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			return nil, false
		}
		key, ok := scalarKey(obj[d.arrayKey])
		if !ok || slices.Contains(keys, key) {
			return nil, false
		}
		keys = append(keys, key)
	}
	return keys, true
}

func (d *ConfigDiffer) elementPath(path, key string) string {
	return fmt.Sprintf("%s[%s=%s]", path, d.arrayKey, key)
}

func scalarKey(v any) (string, bool) {
	switch k := normalize(v).(type) {
	case string:
		return k, k != "" && !strings.ContainsAny(k, ".[]")
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64), true
	default:
		return "", false
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func equalValues(a, b any) bool {
	return cmp.Equal(normalize(a), normalize(b))
}

// normalize maps a value onto the JSON data model: numbers become float64,
// maps and slices are walked, anything else goes through encoding/json
func normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, string, float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return string(data)
		}
		return normalize(generic)
	}
}

func toObject(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	if v == nil {
		return map[string]any{}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ChangedTopLevelFields returns the sorted, distinct root fields touched by diff
func ChangedTopLevelFields(diff Diff) []string {
	seen := make(map[string]struct{})
	for path := range diff {
		seen[rootField(path)] = struct{}{}
	}

	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func rootField(path string) string {
	if i := strings.IndexAny(path, ".["); i >= 0 {
		return path[:i]
	}
	return path
}

// Summarize renders one human-readable line per changed path, sorted by path
func Summarize(diff Diff) []string {
	lines := make([]string, 0, len(diff))
	for _, path := range diff.Paths() {
		ch := diff[path]
		switch ch.Kind {
		case ChangeAdded:
			lines = append(lines, fmt.Sprintf("%s: added %s", path, renderValue(ch.Current)))
		case ChangeRemoved:
			lines = append(lines, fmt.Sprintf("%s: removed (was %s)", path, renderValue(ch.Original)))
		default:
			lines = append(lines, fmt.Sprintf("%s: %s -> %s", path, renderValue(ch.Original), renderValue(ch.Current)))
		}
	}
	return lines
}

func renderValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// ApplyDiff returns a copy of original with every change in diff applied.
// Elements added to a keyed array are appended at its end.
func ApplyDiff(original map[string]any, diff Diff) map[string]any {
	out, _ := deepCopy(original).(map[string]any)
	if out == nil {
		out = make(map[string]any)
	}

	for _, path := range diff.Paths() {
		applyChange(out, parsePath(path), diff[path])
	}
	return out
}

type pathSegment struct {
	name     string
	keyField string
	keyValue string
	keyed    bool
}

func parsePath(path string) []pathSegment {
	var segments []pathSegment
	for _, part := range strings.Split(path, ".") {
		seg := pathSegment{name: part}
		if open := strings.IndexByte(part, '['); open >= 0 && strings.HasSuffix(part, "]") {
			selector := part[open+1 : len(part)-1]
			if field, value, ok := strings.Cut(selector, "="); ok {
				seg = pathSegment{name: part[:open], keyField: field, keyValue: value, keyed: true}
			}
		}
		segments = append(segments, seg)
	}
	return segments
}

func applyChange(root map[string]any, segments []pathSegment, ch FieldChange) {
	seg := segments[0]
	last := len(segments) == 1

	if !seg.keyed {
		if last {
			if ch.Kind == ChangeRemoved {
				delete(root, seg.name)
			} else {
				root[seg.name] = deepCopy(ch.Current)
			}
			return
		}

		child, ok := root[seg.name].(map[string]any)
		if !ok {
			child = make(map[string]any)
			root[seg.name] = child
		}
		applyChange(child, segments[1:], ch)
		return
	}

	arr, _ := root[seg.name].([]any)
	idx := slices.IndexFunc(arr, func(el any) bool {
		obj, ok := el.(map[string]any)
		if !ok {
			return false
		}
		key, ok := scalarKey(obj[seg.keyField])
		return ok && key == seg.keyValue
	})

	if last {
		switch {
		case ch.Kind == ChangeRemoved && idx >= 0:
			arr = slices.Delete(arr, idx, idx+1)
		case ch.Kind == ChangeAdded && idx < 0:
			arr = append(arr, deepCopy(ch.Current))
		case idx >= 0:
			arr[idx] = deepCopy(ch.Current)
		}
		root[seg.name] = arr
		return
	}

	if idx < 0 {
		return
	}
	if obj, ok := arr[idx].(map[string]any); ok {
		applyChange(obj, segments[1:], ch)
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return t
	}
}
