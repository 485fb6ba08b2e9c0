// Package reshape pivots the long (device, label, variable id) table into
// the wide export table: one row per device, one column per variable label,
// followed by the device's fixed coordinates.
//
// The pivot is a pure function of its inputs. Equal inputs always produce
// byte-identical CSV output.
//
// Usage:
//
//	wide, err := reshape.Pivot(joined.Rows, joined.Devices)
//	if err != nil {
//	    return err
//	}
//	out := wide.Narrow([]string{"name", "rh", "t", "lat", "lng"})
//	err = out.WriteCSV(f)
package reshape
