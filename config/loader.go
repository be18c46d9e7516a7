/*
Copyright © 2025 Storescrape contributors.

Released under MIT license.
*/

package config

import (
	"errors"
	"io"
)

// ErrNoSections is returned when a Loader is asked to load nothing.
var ErrNoSections = errors.New("no configuration sections to load")

// Loader fills configuration sections from a DataProvider.
//
// Defaults of all sections are registered before any section reads its values,
// so one section may read a key defaulted by another one.
// A section that implements KeyPrefixProvider reads its keys under its prefix.
type Loader struct {
	DataProvider DataProvider
}

// NewDefaultLoader creates a Loader backed by viper that also reads environment variables
// named as <envVarsPrefix>_<KEY> (dots in keys are replaced with underscores).
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a Loader reading from dp.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{DataProvider: dp}
}

// LoadFromFile reads the file and fills the sections.
// If dataType is empty, it is detected by the file extension.
func (l *Loader) LoadFromFile(path string, dataType DataType, sections ...Config) error {
	if dataType == "" {
		var err error
		if dataType, err = DataTypeFromPath(path); err != nil {
			return err
		}
	}
	return l.loadAfter(func() error { return l.DataProvider.SetFromFile(path, dataType) }, sections)
}

// LoadFromReader reads the data and fills the sections.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, sections ...Config) error {
	return l.loadAfter(func() error { return l.DataProvider.SetFromReader(reader, dataType) }, sections)
}

// Load fills the sections from defaults and whatever the DataProvider already holds (e.g. environment variables).
func (l *Loader) Load(sections ...Config) error {
	return l.loadAfter(nil, sections)
}

func (l *Loader) loadAfter(read func() error, sections []Config) error {
	if len(sections) == 0 {
		return ErrNoSections
	}
	if read != nil {
		if err := read(); err != nil {
			return err
		}
	}

	providers := make([]DataProvider, len(sections))
	for i, section := range sections {
		providers[i] = l.sectionProvider(section)
		section.SetProviderDefaults(providers[i])
	}
	for i, section := range sections {
		if err := section.Set(providers[i]); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) sectionProvider(section Config) DataProvider {
	if kp, ok := section.(KeyPrefixProvider); ok {
		if prefix := kp.KeyPrefix(); prefix != "" {
			return NewKeyPrefixedDataProvider(l.DataProvider, prefix)
		}
	}
	return l.DataProvider
}
