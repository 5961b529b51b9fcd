package ledger

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Domain prefix for statement hashes. Version suffix enables future
// algorithm migration.
const statementDomain = "skema/statement/v1"

// StatementHash computes the content hash of an entity's rendered DDL.
// The SQL text is NFC-normalized first: comments carry accented and
// non-Latin text, and the hash must not depend on the Unicode encoding
// form of the source YAML.
//
// Format: SHA256(domain + 0x00 + nfc(sql)). The null separator prevents
// domain/data boundary ambiguity.
func StatementHash(sql string) string {
	h := sha256.New()
	h.Write([]byte(statementDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(norm.NFC.String(sql)))
	return hex.EncodeToString(h.Sum(nil))
}
