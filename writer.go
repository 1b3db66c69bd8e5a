package fmorm

import (
	"context"
	"fmt"
	"sort"

	"github.com/filemakergo/fmorm/pkg/constants"
	"github.com/filemakergo/fmorm/pkg/extract"
	"github.com/filemakergo/fmorm/pkg/models"
)

// Writer inserts, updates and deletes records of one model spec and keeps the model's
// identity in sync with the server.
type Writer struct {
	db        *DB
	spec      *models.ModelSpec
	extractor *extract.Extractor
}

func newWriter(db *DB, spec *models.ModelSpec) *Writer {
	return &Writer{db: db, spec: spec, extractor: extract.New(spec)}
}

// Insert creates a record from values and refreshes m from the stored record. Container
// values are uploaded once the record exists. It returns the primary key value the
// server assigned.
func (w *Writer) Insert(ctx context.Context, m *Model, values map[string]any) (any, error) {
	if w.spec.Layout == "" {
		return nil, constants.ErrNoLayout
	}
	fields, containers := w.split(values)

	res, err := w.db.store.Add(ctx, w.spec.Layout, fields)
	if err != nil {
		return nil, fmt.Errorf("insert into layout %q: %w", w.spec.Layout, err)
	}
	rec := res.First()
	if rec == nil {
		return nil, fmt.Errorf("insert into layout %q: %w", w.spec.Layout, constants.InvalidResponse)
	}

	m.setRawAttributes(w.extractor.ExtractFields(rec))
	m.setMeta(models.NewMeta(models.RecordIdentity{
		RecordID:       rec.RecordID,
		ModificationID: rec.ModificationID,
	}))
	m.exists = true

	w.db.logger.Debug().
		Str("layout", w.spec.Layout).
		Str("recordId", rec.RecordID).
		Msg("record inserted")

	if err := w.uploadContainers(ctx, m, containers); err != nil {
		return nil, err
	}
	m.syncOriginal()
	return m.Key(), nil
}

// Update writes values to the record of m. Ordinary values are edited first and the
// model refreshed from the result, keeping its metadata apart from the new modification
// id. Container values are uploaded afterwards.
func (w *Writer) Update(ctx context.Context, m *Model, values map[string]any) error {
	meta := m.Meta()
	if meta == nil || meta.RecordID == "" {
		return constants.ErrNotPersisted
	}
	fields, containers := w.split(values)

	if len(fields) > 0 {
		res, err := w.db.store.Edit(ctx, w.spec.Layout, meta.RecordID, meta.ModificationID, fields)
		if err != nil {
			return fmt.Errorf("update record %s on layout %q: %w", meta.RecordID, w.spec.Layout, err)
		}
		rec := res.First()
		if rec == nil {
			return fmt.Errorf("update record %s on layout %q: %w", meta.RecordID, w.spec.Layout, constants.InvalidResponse)
		}

		m.setRawAttributes(w.extractor.ExtractFields(rec))
		meta.ModificationID = rec.ModificationID
		m.setMeta(meta)

		w.db.logger.Debug().
			Str("layout", w.spec.Layout).
			Str("recordId", meta.RecordID).
			Str("modId", meta.ModificationID).
			Msg("record updated")
	}

	if err := w.uploadContainers(ctx, m, containers); err != nil {
		return err
	}
	m.syncOriginal()
	return nil
}

// Delete removes the record of m.
func (w *Writer) Delete(ctx context.Context, m *Model) error {
	meta := m.Meta()
	if meta == nil || meta.RecordID == "" {
		return constants.ErrNotPersisted
	}
	if _, err := w.db.store.Delete(ctx, w.spec.Layout, meta.RecordID); err != nil {
		return fmt.Errorf("delete record %s on layout %q: %w", meta.RecordID, w.spec.Layout, err)
	}
	m.exists = false

	w.db.logger.Debug().
		Str("layout", w.spec.Layout).
		Str("recordId", meta.RecordID).
		Msg("record deleted")
	return nil
}

// split separates container values from ordinary ones. A cleared container field is
// written as an empty value.
func (w *Writer) split(values map[string]any) (map[string]any, map[string]*models.ContainerField) {
	fields := map[string]any{}
	containers := map[string]*models.ContainerField{}
	for k, v := range values {
		if c, ok := v.(*models.ContainerField); ok && c != nil {
			containers[k] = c
			continue
		}
		if v == nil && w.spec.IsContainerField(k) {
			fields[k] = ""
			continue
		}
		fields[k] = v
	}
	return fields, containers
}

// uploadContainers hands new container content to the uploader. Containers that only
// reference server content are skipped.
func (w *Writer) uploadContainers(ctx context.Context, m *Model, containers map[string]*models.ContainerField) error {
	keys := make([]string, 0, len(containers))
	for k, c := range containers {
		if c.HasUpload() {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if w.db.uploader == nil {
		return constants.ErrNoContainerUploader
	}
	sort.Strings(keys)

	meta := m.Meta()
	for _, k := range keys {
		c := containers[k]
		modID, err := w.db.uploader.UploadContainer(ctx, w.spec.Layout, meta.RecordID, k, c.Filename, c.Data)
		if err != nil {
			return fmt.Errorf("upload container %q of record %s: %w", k, meta.RecordID, err)
		}
		if modID != "" {
			meta.ModificationID = modID
		}
		m.attributes.Set(k, c)
	}
	return nil
}
