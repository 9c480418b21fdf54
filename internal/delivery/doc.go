// Package delivery sends a single notification embed to one Discord-
// compatible webhook endpoint and classifies the outcome so callers can
// decide whether the failure is permanent or worth retrying.
package delivery
