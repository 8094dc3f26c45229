// Package language normalizes language hints and service-reported languages
// to ISO 639-1 codes.
package language
