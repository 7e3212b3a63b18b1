// Package radio holds the AT command vocabulary of the link radio: the fixed
// batches for pairing, parameter updates, address and credential changes,
// and the parser for query replies.
package radio
