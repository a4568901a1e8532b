/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package config loads the kernel's boot parameters from an ini-style
// file via github.com/gravwell/gcfg, the same library and file-size
// guard the teacher's own config loader uses. Grounded on
// config/loader.go and manager/config.go in the teacher.
package config

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/gravwell/gcfg"
)

const (
	mb            int64 = 1024 * 1024
	maxConfigSize int64 = 4 * mb
)

var (
	ErrConfigFileTooLarge = errors.New("config: file is too large")
	ErrFailedFileRead     = errors.New("config: failed to read entire file")
)

// LoadConfigFile opens p, checks its size, and parses it into v via
// LoadConfigBytes.
func LoadConfigFile(v interface{}, p string) (err error) {
	var fin *os.File
	var fi os.FileInfo
	var n int64
	if fin, err = os.Open(p); err != nil {
		return
	} else if fi, err = fin.Stat(); err != nil {
		fin.Close()
		return
	} else if fi.Size() > maxConfigSize {
		fin.Close()
		return ErrConfigFileTooLarge
	}

	bb := bytes.NewBuffer(nil)
	if n, err = io.Copy(bb, fin); err != nil {
		fin.Close()
		return
	} else if n != fi.Size() {
		fin.Close()
		return ErrFailedFileRead
	} else if err = fin.Close(); err == nil {
		err = LoadConfigBytes(v, bb.Bytes())
	}
	return
}

// LoadConfigBytes parses the ini-format contents of b into v.
func LoadConfigBytes(v interface{}, b []byte) error {
	if int64(len(b)) > maxConfigSize {
		return ErrConfigFileTooLarge
	}
	return gcfg.ReadStringInto(v, string(b))
}
