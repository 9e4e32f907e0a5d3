package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	cfg "github.com/fabian4/overwrite-homebrew-go/internal/config"
	"github.com/fabian4/overwrite-homebrew-go/internal/overwrite"
)

// convertFile writes outPath only after a successful conversion, through a
// temp file renamed over it, so the input may also be the output.
func convertFile(eng *overwrite.Engine, inPath, outPath string, knobs cfg.Knobs) error {
	var r io.Reader = os.Stdin
	if inPath != "-" {
		f, err := os.Open(inPath)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	if outPath == "-" {
		return convert(eng, r, os.Stdout, knobs)
	}
	var buf bytes.Buffer
	if err := convert(eng, r, &buf, knobs); err != nil {
		return err
	}
	return replaceFile(outPath, buf.Bytes())
}

func replaceFile(path string, data []byte) (err error) {
	mode := os.FileMode(0o644)
	if fi, serr := os.Stat(path); serr == nil {
		mode = fi.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err = tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod output: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace output: %w", err)
	}
	return nil
}

func convert(eng *overwrite.Engine, r io.Reader, w io.Writer, knobs cfg.Knobs) error {
	in, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	out, res, err := eng.Convert(in, knobs.Options())
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"proxies":       res.Proxies,
		"region_groups": res.RegionGroups,
		"groups":        res.Groups,
		"took":          res.Duration,
	}).Info("converted")
	return nil
}
