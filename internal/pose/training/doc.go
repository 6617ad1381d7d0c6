// Package training fits the sequence classifier from labeled pose
// sequences.
//
// Sequences are normalized and windowed with the same l2features and
// l3window code the live session uses, so training and serving see identical
// inputs. Every attempt is recorded in a RunLedger whether it succeeds or
// not. The model handle persists the result only on success.
package training
