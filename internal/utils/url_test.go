package utils

import (
	"reflect"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	normalized, domain, err := NormalizeURL("https://Example.com/path?utm_source=test&x=1#top")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if domain != "example.com" {
		t.Fatalf("unexpected domain: %s", domain)
	}
	if normalized != "https://example.com/path?x=1" {
		t.Fatalf("unexpected normalized url: %s", normalized)
	}
}

func TestNormalizeURLPunycode(t *testing.T) {
	_, domain, err := NormalizeURL("https://bücher.example/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if domain != "xn--bcher-kva.example" {
		t.Fatalf("unexpected domain: %s", domain)
	}
}

func TestLinkDomains(t *testing.T) {
	content := "see https://b.example/x and (https://A.example/y) plus https://b.example/z, no link here"
	got := LinkDomains(content)
	want := []string{"a.example", "b.example"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if domains := LinkDomains("plain text"); len(domains) != 0 {
		t.Fatalf("expected no domains, got %v", domains)
	}
}
