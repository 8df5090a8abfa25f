//go:build !integration

package main

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func resetReconcileFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		reconcileFileID = ""
		reconcileFileHash = ""
		reconcileSource = ""
	})
}

func TestLoadReconcileInput_HashesInvoiceJSON(t *testing.T) {
	resetReconcileFlags(t)

	data := []byte(`{"vendor_name":"Acme Co","invoice_number":"INV-001","payment_terms":"Net 30"}`)
	path := writeTempFile(t, "invoice.json", data)

	in, err := loadReconcileInput(path)
	require.NoError(t, err)

	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), in.FileHash)
	assert.Equal(t, "invoice.json", in.FileName)
	assert.Equal(t, "Acme Co", in.Invoice.VendorName)
	assert.Equal(t, "INV-001", in.Invoice.InvoiceNumber)
}

func TestLoadReconcileInput_HashesSourceDocument(t *testing.T) {
	resetReconcileFlags(t)

	invoicePath := writeTempFile(t, "invoice.json", []byte(`{"vendor_name":"Acme Co"}`))
	source := []byte("%PDF-1.7 raw invoice bytes")
	reconcileSource = writeTempFile(t, "acme-invoice.pdf", source)

	in, err := loadReconcileInput(invoicePath)
	require.NoError(t, err)

	sum := sha256.Sum256(source)
	assert.Equal(t, hex.EncodeToString(sum[:]), in.FileHash)
	assert.Equal(t, "acme-invoice.pdf", in.FileName)
}

func TestLoadReconcileInput_ExplicitHashAndID(t *testing.T) {
	resetReconcileFlags(t)

	reconcileFileHash = "abc123"
	reconcileFileID = "file-9"
	path := writeTempFile(t, "invoice.json", []byte(`{"vendor_name":"Acme Co"}`))

	in, err := loadReconcileInput(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", in.FileHash)
	assert.Equal(t, "file-9", in.FileID)
}

func TestLoadReconcileInput_Errors(t *testing.T) {
	resetReconcileFlags(t)

	_, err := loadReconcileInput(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := writeTempFile(t, "invoice.json", []byte("not json"))
	_, err = loadReconcileInput(bad)
	assert.Error(t, err)
}

func TestBuildRecordFilter(t *testing.T) {
	t.Cleanup(func() {
		recordsStatus = ""
		recordsVendor = ""
	})

	recordsStatus = "matched"
	recordsVendor = "Acme Co"
	filter, err := buildRecordFilter()
	require.NoError(t, err)
	assert.Equal(t, "Acme Co", filter.VendorName)

	recordsStatus = "pending"
	_, err = buildRecordFilter()
	assert.Error(t, err)
}
