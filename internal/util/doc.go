// Package util holds small helpers shared by the server and HTTP layers.
//
// Key utilities:
//   - SafeTruncate: truncates strings without panicking
//   - TokenPrefix: the short, loggable form of a credential
package util
