package x11

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// AuthInfo is an authorization entry presented during the setup handshake.
type AuthInfo struct {
	Name string
	Data []byte
}

const mitMagicCookie = "MIT-MAGIC-COOKIE-1"

// Address families used in the Xauthority file format.
const (
	authFamilyLocal = 256
	authFamilyWild  = 65535
)

// resolveAuth looks up the authorization entry for the display, consulting
// authFile, then $XAUTHORITY, then ~/.Xauthority. A missing or unreadable
// file means connecting without authorization, never an error.
func resolveAuth(authFile string, d Display) *AuthInfo {
	path := authFile
	if path == "" {
		path = os.Getenv("XAUTHORITY")
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".Xauthority")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	hostname, _ := os.Hostname()
	return findAuthority(f, hostname, strconv.Itoa(d.Number))
}

// findAuthority scans Xauthority records for the first MIT-MAGIC-COOKIE-1
// entry matching the local hostname (or a wildcard) and the display number.
// Records are big-endian, length-prefixed fields.
func findAuthority(r io.Reader, hostname, number string) *AuthInfo {
	rd := bufio.NewReader(r)
	for {
		entry, err := readAuthEntry(rd)
		if err != nil {
			return nil
		}
		if entry.name != mitMagicCookie {
			continue
		}
		if entry.number != "" && entry.number != number {
			continue
		}
		switch entry.family {
		case authFamilyWild:
		case authFamilyLocal:
			if string(entry.addr) != hostname {
				continue
			}
		default:
			continue
		}
		return &AuthInfo{Name: entry.name, Data: entry.data}
	}
}

type authEntry struct {
	family uint16
	addr   []byte
	number string
	name   string
	data   []byte
}

func readAuthEntry(r io.Reader) (authEntry, error) {
	var e authEntry
	var err error
	if e.family, err = readAuthU16(r); err != nil {
		return e, err
	}
	if e.addr, err = readAuthBlock(r); err != nil {
		return e, err
	}
	number, err := readAuthBlock(r)
	if err != nil {
		return e, err
	}
	e.number = string(number)
	name, err := readAuthBlock(r)
	if err != nil {
		return e, err
	}
	e.name = string(name)
	if e.data, err = readAuthBlock(r); err != nil {
		return e, err
	}
	return e, nil
}

func readAuthU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readAuthBlock(r io.Reader) ([]byte, error) {
	n, err := readAuthU16(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
