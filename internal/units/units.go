// Package units converts DWD-native measurement units into SI units and back.
//
// Every conversion is an affine transform (factor and offset) looked up in a
// static table. The tables are data, not code: they are validated once at
// package init and never change at runtime. Conversions are total over their
// declared domain — a unit that appears in a format descriptor is guaranteed
// to have a table entry, so the call sites have no error path.
//
// Rounding follows the precision DWD reports for the native value: converting
// tenths-of-degree Celsius to Kelvin keeps two decimals, km/h to m/s keeps
// one. Conversions never round further than their intrinsic factor requires.
package units

import (
	"fmt"
	"math"
)

// Unit identifies a physical measurement unit as used by DWD products or by
// the SI-normalized record model.
type Unit string

const (
	// SI (record model) units.
	Kelvin            Unit = "K"
	Pascal            Unit = "Pa"
	MetersPerSecond   Unit = "m/s"
	Meter             Unit = "m"
	Second            Unit = "s"
	Percent           Unit = "%"
	Degree            Unit = "°"
	Millimeter        Unit = "mm"
	JoulePerSqMeter   Unit = "J/m²"

	// DWD-native units.
	Celsius           Unit = "°C"
	Hectopascal       Unit = "hPa"
	KmPerHour         Unit = "km/h"
	Kilometer         Unit = "km"
	Minute            Unit = "min"
	Eighth            Unit = "1/8"
	JoulePerSqCm      Unit = "J/cm²"
	KilojoulePerSqM   Unit = "kJ/m²"
	WattPerSqMeter    Unit = "W/m²" // hourly mean irradiance
)

// conversion is an affine transform into SI: si = v*factor + offset, rounded
// to precision decimal places (-1 disables rounding).
type conversion struct {
	target    Unit
	factor    float64
	offset    float64
	precision int
}

// table maps each native unit to its SI conversion. Identity entries make the
// table total over every unit a format descriptor may declare.
var table = map[Unit]conversion{
	Celsius:         {target: Kelvin, factor: 1, offset: 273.15, precision: 2},
	Hectopascal:     {target: Pascal, factor: 100, precision: 0},
	KmPerHour:       {target: MetersPerSecond, factor: 1.0 / 3.6, precision: 1},
	Kilometer:       {target: Meter, factor: 1000, precision: -1},
	Minute:          {target: Second, factor: 60, precision: -1},
	Eighth:          {target: Percent, factor: 12.5, precision: -1},
	JoulePerSqCm:    {target: JoulePerSqMeter, factor: 10000, precision: -1},
	KilojoulePerSqM: {target: JoulePerSqMeter, factor: 1000, precision: -1},
	WattPerSqMeter:  {target: JoulePerSqMeter, factor: 3600, precision: -1},

	Kelvin:          {target: Kelvin, factor: 1, precision: -1},
	Pascal:          {target: Pascal, factor: 1, precision: -1},
	MetersPerSecond: {target: MetersPerSecond, factor: 1, precision: -1},
	Meter:           {target: Meter, factor: 1, precision: -1},
	Second:          {target: Second, factor: 1, precision: -1},
	Percent:         {target: Percent, factor: 1, precision: -1},
	Degree:          {target: Degree, factor: 1, precision: -1},
	Millimeter:      {target: Millimeter, factor: 1, precision: -1},
	JoulePerSqMeter: {target: JoulePerSqMeter, factor: 1, precision: -1},
}

func init() {
	for unit, c := range table {
		if c.factor == 0 {
			panic(fmt.Sprintf("units: zero conversion factor for %q", unit))
		}
		if _, ok := table[c.target]; !ok {
			panic(fmt.Sprintf("units: conversion target %q of %q is not registered", c.target, unit))
		}
	}
}

// ToSI converts a native-unit value into its SI equivalent and reports the SI
// unit. Native units outside the table panic; descriptors are validated at
// registry init, so this cannot happen for registered formats.
func ToSI(v float64, native Unit) (float64, Unit) {
	c, ok := table[native]
	if !ok {
		panic(fmt.Sprintf("units: unregistered unit %q", native))
	}
	return round(v*c.factor+c.offset, c.precision), c.target
}

// FromSI inverts ToSI, recovering the native-unit value from an SI value.
// The inverse is exact; records preserve the source's reported precision by
// carrying the native value alongside the SI one.
func FromSI(v float64, native Unit) float64 {
	c, ok := table[native]
	if !ok {
		panic(fmt.Sprintf("units: unregistered unit %q", native))
	}
	return (v - c.offset) / c.factor
}

// SITarget reports the SI unit that a native unit converts into.
func SITarget(native Unit) Unit {
	c, ok := table[native]
	if !ok {
		panic(fmt.Sprintf("units: unregistered unit %q", native))
	}
	return c.target
}

// IsRegistered reports whether a unit has a table entry. The registry uses
// this to validate format descriptors at startup.
func IsRegistered(u Unit) bool {
	_, ok := table[u]
	return ok
}

func round(v float64, precision int) float64 {
	if precision < 0 {
		return v
	}
	scale := math.Pow(10, float64(precision))
	return math.Round(v*scale) / scale
}
