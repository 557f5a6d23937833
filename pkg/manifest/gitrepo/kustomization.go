package gitrepo

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// The manifest file is a kustomization with an images transformer; the
// deployed tag is images[0].newTag. Editing goes through yaml.MapSlice
// so field order and fields we know nothing about survive the
// round-trip. Comments do not; the file is owned by this tool.

func readTag(raw []byte) (string, error) {
	entry, err := firstImage(raw)
	if err != nil {
		return "", err
	}
	for _, item := range entry {
		if key, ok := item.Key.(string); ok && key == "newTag" {
			tag, ok := item.Value.(string)
			if !ok {
				return "", errors.New("newTag is not a string")
			}
			return tag, nil
		}
	}
	return "", errors.New("no newTag in images entry")
}

func writeTag(raw []byte, tag string) ([]byte, error) {
	var doc yaml.MapSlice
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing manifest")
	}
	entry, err := firstImageOf(doc)
	if err != nil {
		return nil, err
	}
	for i, item := range entry {
		if key, ok := item.Key.(string); ok && key == "newTag" {
			entry[i].Value = tag
			return yaml.Marshal(doc)
		}
	}
	return nil, errors.New("no newTag in images entry")
}

func firstImage(raw []byte) (yaml.MapSlice, error) {
	var doc yaml.MapSlice
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing manifest")
	}
	return firstImageOf(doc)
}

func firstImageOf(doc yaml.MapSlice) (yaml.MapSlice, error) {
	for _, item := range doc {
		key, ok := item.Key.(string)
		if !ok || key != "images" {
			continue
		}
		list, ok := item.Value.([]interface{})
		if !ok || len(list) == 0 {
			return nil, errors.New("images list is empty")
		}
		entry, ok := list[0].(yaml.MapSlice)
		if !ok {
			return nil, errors.New("images entry is not a mapping")
		}
		return entry, nil
	}
	return nil, errors.New("no images transformer in manifest")
}
