package models

import (
	"fmt"
	"os"
	"path/filepath"
)

// ContainerField is the value of a container (attachment) field.
//
// A container either references content already stored on the server (URL) or
// carries content to upload (Data with Filename).
type ContainerField struct {
	Key      string
	Filename string
	URL      string
	Data     []byte
	loaded   bool
}

// ContainerFromBytes returns a container carrying data to upload.
func ContainerFromBytes(filename string, data []byte) *ContainerField {
	return &ContainerField{Filename: filename, Data: data, loaded: true}
}

// ContainerFromPath reads the file at path into a container.
func ContainerFromPath(path string) (*ContainerField, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading container file: %w", err)
	}
	return ContainerFromBytes(filepath.Base(path), data), nil
}

// ContainerFromServer returns a container referencing server content by URL.
func ContainerFromServer(key, url string) *ContainerField {
	return &ContainerField{Key: key, URL: url}
}

// IsLoaded reports whether Data holds the container content.
func (c *ContainerField) IsLoaded() bool {
	return c.loaded
}

// SetData stores downloaded content.
func (c *ContainerField) SetData(data []byte) {
	c.Data = data
	c.loaded = true
}

// HasUpload reports whether the container carries content that was not read from the server.
func (c *ContainerField) HasUpload() bool {
	return c.URL == "" && c.loaded
}

func (c *ContainerField) String() string {
	if c.URL != "" {
		return c.URL
	}
	return c.Filename
}
