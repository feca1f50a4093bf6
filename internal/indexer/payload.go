package indexer

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/repoindex/internal/repository"
)

// ErrInvalidPayload is returned when a stored payload cannot be decoded
// into a record.
var ErrInvalidPayload = errors.New("invalid payload")

// Payload keys. Nothing outside this file reads or writes them.
const (
	keyType          = "type"
	keyPath          = "path"
	keyEntryCount    = "entry_count"
	keyChildFiles    = "child_file_paths"
	keyParent        = "parent"
	keyContent       = "content"
	keyLastModified  = "last_modified"
	keyFileType      = "file_type"
	keyLineCount     = "line_count"
	keyLineNumber    = "line_number"
	keyPrevious      = "previous"
	keyNext          = "next"
	keyRepository    = "repository"
	keyBranch        = "branch"
	keyRedactedRules = "redacted_rules"
)

var recordKeys = map[repository.Kind][]string{
	repository.KindFolder: {keyType, keyPath, keyEntryCount, keyChildFiles, keyParent},
	repository.KindFile:   {keyType, keyPath, keyContent, keyLastModified, keyFileType, keyLineCount},
	repository.KindLine:   {keyType, keyPath, keyLineNumber, keyContent, keyPrevious, keyNext},
}

var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/fyrsmithlabs/repoindex"))

// PointID derives a stable point id from a record's kind and key, so
// re-indexing a repository overwrites its previous points.
func PointID(rec repository.Record) string {
	return uuid.NewSHA1(pointNamespace, []byte(rec.Kind().String()+"\x00"+rec.Key())).String()
}

// EncodePayload flattens rec into a payload. extra entries are merged in
// and must not use record keys.
func EncodePayload(rec repository.Record, extra map[string]interface{}) map[string]interface{} {
	p := make(map[string]interface{}, 8+len(extra))
	for k, v := range extra {
		p[k] = v
	}
	p[keyType] = rec.Kind().String()

	switch r := rec.(type) {
	case repository.FolderRecord:
		p[keyPath] = r.Path
		p[keyEntryCount] = int64(r.EntryCount)
		files := make([]interface{}, len(r.ChildFilePaths))
		for i, f := range r.ChildFilePaths {
			files[i] = f
		}
		p[keyChildFiles] = files
		if r.Parent != "" {
			p[keyParent] = r.Parent
		}
	case repository.FileRecord:
		p[keyPath] = r.Path
		p[keyContent] = r.Content
		p[keyLastModified] = r.LastModified.UTC().Format(time.RFC3339Nano)
		p[keyFileType] = r.FileType
		p[keyLineCount] = int64(r.LineCount)
	case repository.LineRecord:
		p[keyPath] = r.Path
		p[keyLineNumber] = int64(r.LineNumber)
		p[keyContent] = r.Content
		if r.Previous != nil {
			p[keyPrevious] = encodeLineContext(*r.Previous)
		}
		if r.Next != nil {
			p[keyNext] = encodeLineContext(*r.Next)
		}
	}
	return p
}

func encodeLineContext(c repository.LineContext) map[string]interface{} {
	return map[string]interface{}{
		keyLineNumber: int64(c.LineNumber),
		keyContent:    c.Content,
	}
}

// DecodePayload rebuilds the record stored in p. Keys that are not part of
// the record are returned as extra, or nil when there are none.
func DecodePayload(p map[string]interface{}) (repository.Record, map[string]interface{}, error) {
	typ, err := stringField(p, keyType, true)
	if err != nil {
		return nil, nil, err
	}
	kind, err := repository.ParseKind(typ)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	path, err := stringField(p, keyPath, true)
	if err != nil {
		return nil, nil, err
	}

	var rec repository.Record
	switch kind {
	case repository.KindFolder:
		rec, err = decodeFolder(p, path)
	case repository.KindFile:
		rec, err = decodeFile(p, path)
	case repository.KindLine:
		rec, err = decodeLine(p, path)
	}
	if err != nil {
		return nil, nil, err
	}
	return rec, extraFields(p, kind), nil
}

func decodeFolder(p map[string]interface{}, path string) (repository.Record, error) {
	count, err := intField(p, keyEntryCount, true)
	if err != nil {
		return nil, err
	}
	parent, err := stringField(p, keyParent, false)
	if err != nil {
		return nil, err
	}
	files := []string{}
	if raw, ok := p[keyChildFiles]; ok && raw != nil {
		list, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: %s is %T, want list", ErrInvalidPayload, keyChildFiles, raw)
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s holds %T, want string", ErrInvalidPayload, keyChildFiles, item)
			}
			files = append(files, s)
		}
	}
	return repository.FolderRecord{Path: path, EntryCount: count, ChildFilePaths: files, Parent: parent}, nil
}

func decodeFile(p map[string]interface{}, path string) (repository.Record, error) {
	content, err := stringField(p, keyContent, false)
	if err != nil {
		return nil, err
	}
	fileType, err := stringField(p, keyFileType, false)
	if err != nil {
		return nil, err
	}
	lines, err := intField(p, keyLineCount, false)
	if err != nil {
		return nil, err
	}
	rec := repository.FileRecord{Path: path, Content: content, FileType: fileType, LineCount: lines}

	modified, err := stringField(p, keyLastModified, false)
	if err != nil {
		return nil, err
	}
	if modified != "" {
		if rec.LastModified, err = time.Parse(time.RFC3339Nano, modified); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPayload, keyLastModified, err)
		}
	}
	return rec, nil
}

func decodeLine(p map[string]interface{}, path string) (repository.Record, error) {
	n, err := intField(p, keyLineNumber, true)
	if err != nil {
		return nil, err
	}
	content, err := stringField(p, keyContent, false)
	if err != nil {
		return nil, err
	}
	rec := repository.LineRecord{Path: path, LineNumber: n, Content: content}
	if rec.Previous, err = lineContextField(p, keyPrevious); err != nil {
		return nil, err
	}
	if rec.Next, err = lineContextField(p, keyNext); err != nil {
		return nil, err
	}
	return rec, nil
}

func lineContextField(p map[string]interface{}, key string) (*repository.LineContext, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T, want object", ErrInvalidPayload, key, raw)
	}
	n, err := intField(m, keyLineNumber, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	content, err := stringField(m, keyContent, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &repository.LineContext{LineNumber: n, Content: content}, nil
}

func stringField(p map[string]interface{}, key string, required bool) (string, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		if required {
			return "", fmt.Errorf("%w: missing %s", ErrInvalidPayload, key)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, want string", ErrInvalidPayload, key, raw)
	}
	return s, nil
}

// intField accepts every integer representation a backend may return.
func intField(p map[string]interface{}, key string, required bool) (int, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		if required {
			return 0, fmt.Errorf("%w: missing %s", ErrInvalidPayload, key)
		}
		return 0, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %s is not an integer: %v", ErrInvalidPayload, key, v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("%w: %s is %T, want integer", ErrInvalidPayload, key, raw)
	}
}

func extraFields(p map[string]interface{}, kind repository.Kind) map[string]interface{} {
	known := recordKeys[kind]
	var extra map[string]interface{}
outer:
	for k, v := range p {
		for _, rk := range known {
			if k == rk {
				continue outer
			}
		}
		if extra == nil {
			extra = make(map[string]interface{})
		}
		extra[k] = v
	}
	return extra
}
