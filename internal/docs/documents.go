package docs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/starford/taskgraph/internal/models"
)

// Summary is the progress header written at the top of the progress
// document.
type Summary struct {
	ProjectName    string  `json:"project_name" yaml:"project_name"`
	Total          int     `json:"total" yaml:"total"`
	Completed      int     `json:"completed" yaml:"completed"`
	InProgress     int     `json:"in_progress" yaml:"in_progress"`
	Pending        int     `json:"pending" yaml:"pending"`
	Blocked        int     `json:"blocked" yaml:"blocked"`
	CompletionRate float64 `json:"completion_rate" yaml:"completion_rate"`
	CurrentTask    string  `json:"current_task,omitempty" yaml:"current_task,omitempty"`
}

// ProgressDoc is the decoded progress document. Changelog entries are kept
// as written so that older free-form entries survive a rewrite.
type ProgressDoc struct {
	Summary   Summary                      `json:"summary" yaml:"summary"`
	Tasks     map[string]models.TaskStatus `json:"tasks" yaml:"tasks"`
	Changelog []any                        `json:"changelog" yaml:"changelog"`
}

// ReadArchitecture decodes the architecture document. data_structures may
// be a list of definitions or a map keyed by name.
func (f *FS) ReadArchitecture() (models.Architecture, error) {
	data, err := f.read(Architecture)
	if err != nil {
		return models.Architecture{}, err
	}
	var raw struct {
		ProjectName      string          `json:"project_name"`
		Created          string          `json:"created"`
		Overview         string          `json:"overview"`
		TechnicalStack   any             `json:"technical_stack"`
		ProjectStructure any             `json:"project_structure"`
		DataStructures   json.RawMessage `json:"data_structures"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.Architecture{}, fmt.Errorf("docs: parse architecture: %w", err)
	}
	ds, err := decodeDataStructures(raw.DataStructures)
	if err != nil {
		return models.Architecture{}, fmt.Errorf("docs: parse architecture: %w", err)
	}
	return models.Architecture{
		ProjectName:      raw.ProjectName,
		Created:          raw.Created,
		Overview:         raw.Overview,
		TechnicalStack:   raw.TechnicalStack,
		ProjectStructure: raw.ProjectStructure,
		DataStructures:   ds,
	}, nil
}

// WriteArchitecture replaces the architecture document.
func (f *FS) WriteArchitecture(a models.Architecture) error {
	return f.write(Architecture, a)
}

// ReadFunctions decodes the functions document, either a bare list or an
// object with a "functions" list.
func (f *FS) ReadFunctions() ([]models.FunctionDef, error) {
	data, err := f.read(Functions)
	if err != nil {
		return nil, err
	}
	var list []models.FunctionDef
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Functions *[]models.FunctionDef `json:"functions"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("docs: parse functions: %w", err)
	}
	if wrapped.Functions == nil {
		return nil, fmt.Errorf("docs: parse functions: expected a list or an object with a functions list")
	}
	return *wrapped.Functions, nil
}

// WriteFunctions replaces the functions document.
func (f *FS) WriteFunctions(fns []models.FunctionDef) error {
	return f.write(Functions, struct {
		Functions []models.FunctionDef `json:"functions" yaml:"functions"`
	}{fns})
}

// ReadProgress decodes the progress document. tasks may be a list or a map
// keyed by function id; a missing document yields an empty ProgressDoc.
func (f *FS) ReadProgress() (ProgressDoc, error) {
	doc := ProgressDoc{Tasks: map[string]models.TaskStatus{}}
	data, err := f.read(Progress)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}

	var raw struct {
		ProjectName string          `json:"project_name"`
		Summary     Summary         `json:"summary"`
		Tasks       json.RawMessage `json:"tasks"`
		Changelog   []any           `json:"changelog"`
		ChangeLog   []any           `json:"change_log"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return doc, fmt.Errorf("docs: parse progress: %w", err)
	}
	doc.Summary = raw.Summary
	if doc.Summary.ProjectName == "" {
		doc.Summary.ProjectName = raw.ProjectName
	}
	doc.Changelog = raw.Changelog
	if doc.Changelog == nil {
		doc.Changelog = raw.ChangeLog
	}
	if doc.Tasks, err = decodeTasks(raw.Tasks); err != nil {
		return doc, fmt.Errorf("docs: parse progress: %w", err)
	}
	return doc, nil
}

// WriteProgress replaces the progress document.
func (f *FS) WriteProgress(doc ProgressDoc) error {
	if doc.Tasks == nil {
		doc.Tasks = map[string]models.TaskStatus{}
	}
	if doc.Changelog == nil {
		doc.Changelog = []any{}
	}
	return f.write(Progress, doc)
}

// LoadGraph assembles a graph from the three documents. Missing documents
// contribute nothing.
func (f *FS) LoadGraph() (models.Graph, models.Architecture, error) {
	var g models.Graph

	arch, err := f.ReadArchitecture()
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return g, arch, err
	default:
		g.DataStructures = arch.DataStructures
	}

	g.Functions, err = f.ReadFunctions()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return g, arch, err
	}

	progress, err := f.ReadProgress()
	if err != nil {
		return g, arch, err
	}
	g.Statuses = progress.Tasks
	return g, arch, nil
}

type taskDoc struct {
	ID        string        `json:"id"`
	Status    models.Status `json:"status"`
	Notes     *string       `json:"notes"`
	UpdatedAt string        `json:"updated_at"`
}

func (t taskDoc) status(id string) models.TaskStatus {
	if t.ID == "" {
		t.ID = id
	}
	st := models.TaskStatus{ID: t.ID, Status: t.Status, UpdatedAt: parseTime(t.UpdatedAt)}
	if t.Status == "" {
		st.Status = models.StatusPending
	}
	if t.Notes != nil {
		st.Notes = *t.Notes
	}
	return st
}

func decodeTasks(data json.RawMessage) (map[string]models.TaskStatus, error) {
	out := map[string]models.TaskStatus{}
	if len(data) == 0 || string(data) == "null" {
		return out, nil
	}
	var list []taskDoc
	if err := json.Unmarshal(data, &list); err == nil {
		for _, t := range list {
			if t.ID != "" {
				out[t.ID] = t.status(t.ID)
			}
		}
		return out, nil
	}
	var byID map[string]taskDoc
	if err := json.Unmarshal(data, &byID); err != nil {
		return nil, fmt.Errorf("tasks: %w", err)
	}
	for id, t := range byID {
		st := t.status(id)
		out[st.ID] = st
	}
	return out, nil
}

// timeLayouts are tried in order; documents written by other tools often
// carry local timestamps without a zone.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

type dataStructureDoc struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Fields      json.RawMessage `json:"fields"`
}

func (d dataStructureDoc) def(name string) (models.DataStructureDef, error) {
	if d.Name == "" {
		d.Name = name
	}
	fields, err := decodeFields(d.Fields)
	if err != nil {
		return models.DataStructureDef{}, fmt.Errorf("data structure %q: %w", d.Name, err)
	}
	return models.DataStructureDef{Name: d.Name, Description: d.Description, Fields: fields}, nil
}

func decodeDataStructures(data json.RawMessage) ([]models.DataStructureDef, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var list []dataStructureDoc
	if err := json.Unmarshal(data, &list); err == nil {
		out := make([]models.DataStructureDef, 0, len(list))
		for _, d := range list {
			def, err := d.def("")
			if err != nil {
				return nil, err
			}
			out = append(out, def)
		}
		return out, nil
	}

	var byName map[string]dataStructureDoc
	if err := json.Unmarshal(data, &byName); err != nil {
		return nil, fmt.Errorf("data_structures: %w", err)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]models.DataStructureDef, 0, len(names))
	for _, name := range names {
		def, err := byName[name].def(name)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

// decodeFields accepts a list of field objects or a map of field name to
// either a type string or a field object.
func decodeFields(data json.RawMessage) ([]models.DataField, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var list []models.DataField
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var byName map[string]json.RawMessage
	if err := json.Unmarshal(data, &byName); err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]models.DataField, 0, len(names))
	for _, name := range names {
		field := models.DataField{Name: name}
		if err := json.Unmarshal(byName[name], &field.Type); err != nil {
			if err := json.Unmarshal(byName[name], &field); err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			if field.Name == "" {
				field.Name = name
			}
		}
		out = append(out, field)
	}
	return out, nil
}
