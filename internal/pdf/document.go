package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/akulikov/statement-import/internal/errs"
)

func configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	// Bank statements are frequently produced by sloppy generators.
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Decrypt removes encryption from the document using the given password.
// A password-related failure is classified as WrongPassword so the caller
// can re-prompt; any other failure is a generic DecryptFailure whose cause
// is never shown to the user.
func Decrypt(data []byte, password string) ([]byte, error) {
	conf := configuration()
	conf.UserPW = password

	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(data), &out, conf); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "password") {
			return nil, errs.Wrap(errs.KindWrongPassword, "incorrect password", err)
		}
		return nil, errs.Wrap(errs.KindDecryptFailure, "could not unlock the document", err)
	}
	return out.Bytes(), nil
}

// PageCount returns the number of pages in the (decrypted) document.
func PageCount(data []byte) (int, error) {
	count, err := api.PageCount(bytes.NewReader(data), configuration())
	if err != nil {
		return 0, fmt.Errorf("page count: %w", err)
	}
	return count, nil
}

// ExtractPageRange returns a new document containing pages from..to
// (1-based, inclusive), preserving their original order.
func ExtractPageRange(data []byte, from, to int) ([]byte, error) {
	if from < 1 || to < from {
		return nil, fmt.Errorf("invalid page range %d-%d", from, to)
	}

	var out bytes.Buffer
	selection := []string{fmt.Sprintf("%d-%d", from, to)}
	if err := api.Trim(bytes.NewReader(data), &out, selection, configuration()); err != nil {
		return nil, fmt.Errorf("extract pages %d-%d: %w", from, to, err)
	}
	return out.Bytes(), nil
}
