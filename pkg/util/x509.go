package util

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"os"
	"strings"
)

// OID definitions for name components, as pkix.Name.String() doesn't format
// in the same order as OpenSSL.
var (
	OidCountry            = asn1.ObjectIdentifier{2, 5, 4, 6}
	OidOrganization       = asn1.ObjectIdentifier{2, 5, 4, 10}
	OidOrganizationalUnit = asn1.ObjectIdentifier{2, 5, 4, 11}
	OidLocality           = asn1.ObjectIdentifier{2, 5, 4, 7}
	OidProvince           = asn1.ObjectIdentifier{2, 5, 4, 8}
	OidCommonName         = asn1.ObjectIdentifier{2, 5, 4, 3}
)

var nameOrder = []struct {
	oid   asn1.ObjectIdentifier
	short string
}{
	{OidCountry, "C"},
	{OidProvince, "ST"},
	{OidLocality, "L"},
	{OidOrganization, "O"},
	{OidOrganizationalUnit, "OU"},
	{OidCommonName, "CN"},
}

// TLSConfig builds the client configuration used to fetch remote images.
// caFile adds PEM roots to the system pool; insecure skips verification.
func TLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: insecure}
	if caFile == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// DescribeCert returns a short, OpenSSL-like summary of the certificate a
// server presented.
func DescribeCert(cert *x509.Certificate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", FormatName(cert.Subject))
	fmt.Fprintf(&b, "Issuer: %s\n", FormatName(cert.Issuer))
	fmt.Fprintf(&b, "Serial Number: %s\n", cert.SerialNumber)
	fmt.Fprintf(&b, "Not Before: %s\n", cert.NotBefore.Format("Jan 2 15:04:05 2006 MST"))
	fmt.Fprintf(&b, "Not After : %s\n", cert.NotAfter.Format("Jan 2 15:04:05 2006 MST"))
	fmt.Fprintf(&b, "Public Key: %s\n", describeKey(cert.PublicKey))
	if len(cert.DNSNames) > 0 {
		fmt.Fprintf(&b, "DNS: %s\n", strings.Join(cert.DNSNames, ", "))
	}
	return b.String()
}

// FormatName formats a pkix.Name the way OpenSSL orders it.
func FormatName(name pkix.Name) string {
	var parts []string
	for _, n := range nameOrder {
		for _, attr := range name.Names {
			if attr.Type.Equal(n.oid) {
				parts = append(parts, fmt.Sprintf("%s=%v", n.short, attr.Value))
			}
		}
	}
	return strings.Join(parts, ", ")
}

func describeKey(pub any) string {
	switch pub := pub.(type) {
	case *rsa.PublicKey:
		return fmt.Sprintf("RSA (%d bit)", pub.N.BitLen())
	case *ecdsa.PublicKey:
		return fmt.Sprintf("ECDSA %s (%d bit)", pub.Curve.Params().Name, pub.Curve.Params().BitSize)
	default:
		return fmt.Sprintf("%T", pub)
	}
}
