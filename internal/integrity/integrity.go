// Package integrity implements the streaming full-image hashes (spec.md
// component L): MD5 mandatory, SHA-1 optional, both updated over
// decompressed payload in logical order and persisted in hash/digest
// sections.
//
// Named an out-of-scope pure-function provider in spec.md §1 ("hashing
// primitives ... provided as pure functions"), so this stays on stdlib
// crypto/md5 and crypto/sha1 rather than reaching for a third-party hash
// library.
package integrity

import (
	"crypto/md5"
	"crypto/sha1"
	"hash"

	"github.com/dnpa/goewf/ewferr"
)

// Digests accumulates MD5 (always) and SHA-1 (optional) over a stream of
// logical-order chunk payloads.
type Digests struct {
	md5    hash.Hash
	sha1   hash.Hash
	withS1 bool
}

// New returns a fresh accumulator. withSHA1 enables the optional SHA-1
// digest alongside the mandatory MD5 one.
func New(withSHA1 bool) *Digests {
	d := &Digests{md5: md5.New(), withS1: withSHA1}
	if withSHA1 {
		d.sha1 = sha1.New()
	}
	return d
}

// Write feeds another logical-order chunk of decompressed payload into both
// active digests. It never fails; hash.Hash.Write is documented never to
// return an error.
func (d *Digests) Write(payload []byte) {
	d.md5.Write(payload)
	if d.withS1 {
		d.sha1.Write(payload)
	}
}

// MD5Sum returns the running MD5 digest.
func (d *Digests) MD5Sum() [md5.Size]byte {
	var out [md5.Size]byte
	copy(out[:], d.md5.Sum(nil))
	return out
}

// SHA1Sum returns the running SHA-1 digest. ok is false if SHA-1 was not
// enabled for this accumulator.
func (d *Digests) SHA1Sum() (sum [sha1.Size]byte, ok bool) {
	if !d.withS1 {
		return sum, false
	}
	copy(sum[:], d.sha1.Sum(nil))
	return sum, true
}

// Verify recomputes digests over the same logical-order payload stream
// (via feed) and compares against the stored expected values, reporting
// IntegrityMismatch on any disagreement.
func Verify(expectedMD5 [md5.Size]byte, expectedSHA1 *[sha1.Size]byte, feed func(*Digests) error) error {
	d := New(expectedSHA1 != nil)
	if err := feed(d); err != nil {
		return err
	}
	if got := d.MD5Sum(); got != expectedMD5 {
		return ewferr.New(ewferr.KindIntegrityMismatch, "integrity.Verify", "md5 mismatch")
	}
	if expectedSHA1 != nil {
		got, _ := d.SHA1Sum()
		if got != *expectedSHA1 {
			return ewferr.New(ewferr.KindIntegrityMismatch, "integrity.Verify", "sha1 mismatch")
		}
	}
	return nil
}
