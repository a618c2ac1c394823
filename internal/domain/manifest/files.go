package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// icoHeader is the reserved word plus the ICO image type.
var icoHeader = []byte{0x00, 0x00, 0x01, 0x00}

func requireExists(p string) error {
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", p, ErrMissingInput)
		}

		return fmt.Errorf("stat %s: %w", p, err)
	}

	return nil
}

// requireFile checks that p is a readable regular file.
func requireFile(p string) error {
	if err := requireExists(p); err != nil {
		return err
	}

	f, err := os.Open(filepath.Clean(p))
	if err != nil {
		return fmt.Errorf("open %s: %w", p, err)
	}

	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", p, err)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file: %w", p, ErrMissingInput)
	}

	return nil
}

// checkIcon verifies the icon exists and, for .ico files, that the header
// declares at least one image. Other formats are left to the packaging tool.
func checkIcon(p string) error {
	if err := requireFile(p); err != nil {
		return err
	}

	if !strings.EqualFold(filepath.Ext(p), ".ico") {
		return nil
	}

	f, err := os.Open(filepath.Clean(p))
	if err != nil {
		return fmt.Errorf("open %s: %w", p, err)
	}

	defer func() {
		_ = f.Close()
	}()

	header := make([]byte, 6)
	if _, err = io.ReadFull(f, header); err != nil {
		return fmt.Errorf("%s: truncated header: %w", p, ErrInvalidIcon)
	}

	if !bytes.Equal(header[:4], icoHeader) {
		return fmt.Errorf("%s: not an ICO file: %w", p, ErrInvalidIcon)
	}

	if header[4] == 0 && header[5] == 0 {
		return fmt.Errorf("%s: icon holds no images: %w", p, ErrInvalidIcon)
	}

	return nil
}
