package persist

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strings"
)

type jsonPersist struct {
	Metadata Metadata
	Data     json.RawMessage
}

// SaveJSON writes obj to filename as pretty-printed JSON, wrapped with
// meta, using a SafeFile so a crash mid-write cannot corrupt the existing
// file.
func SaveJSON(meta Metadata, obj interface{}, filename string) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	wrapper := jsonPersist{Metadata: meta, Data: data}
	b, err := json.MarshalIndent(wrapper, "", "\t")
	if err != nil {
		return err
	}

	sf, err := NewSafeFile(filename)
	if err != nil {
		return err
	}
	defer sf.Close()

	if _, err := sf.Write(b); err != nil {
		return err
	}
	return sf.Commit()
}

// LoadJSON reads filename, checks its Metadata against meta, and decodes
// its payload into objPtr.
func LoadJSON(meta Metadata, objPtr interface{}, filename string) error {
	if strings.HasSuffix(filename, tempSuffix) {
		return ErrBadFilenameSuffix
	}

	b, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}

	var wrapper jsonPersist
	if err := json.Unmarshal(b, &wrapper); err != nil {
		return fmt.Errorf("persist: could not parse %s: %w", filename, err)
	}
	if wrapper.Metadata.Header != meta.Header {
		return ErrBadHeader
	}
	if wrapper.Metadata.Version != meta.Version {
		return ErrBadVersion
	}
	return json.Unmarshal(wrapper.Data, objPtr)
}
