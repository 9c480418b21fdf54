// Package health is the Endpoint Health Monitor: three independent
// schedules that read repository stats once per tick and adapt cleanup
// intensity to the observed active ratio.
package health
