// Package domain computes country-level climate exposure for maize cropland
// from gridded daily climate fields.
//
// # Grids
//
// Every gridded value lives on a geographic (EPSG:4326) lat/lon grid described
// by its cell-centre coordinate vectors. Vectors may run in either direction
// (ERA5 latitudes run north to south). Cell (y, x) is stored at flat index
// y*len(Lons)+x; daily fields add a leading time axis, so value (t, y, x) is
// stored at t*cells + y*len(Lons) + x.
//
// No-data is NaN throughout. Integer-valued layers (the country mask, months)
// use explicit sentinels instead: [NoCountry] and [MonthUndefined].
//
// # Alignment
//
// The climate file being processed is the reference. Secondary inputs are
// brought onto its exact coordinates:
//
//	drought index    bounded nearest in lat, lon and time, then daily forward fill
//	harvested area   raster resample (nearest by default, average or sum)
//	growing season   unbounded nearest in lat and lon (edge cells extend outwards)
//
// "Bounded" means a target outside the source extent gets NaN instead of the
// edge value. After alignment both series are cut to their common time window;
// an empty window is not an error, it just produces no rows.
//
// # Growing season
//
// Planting and harvest days of year are converted to months on a non-leap
// calendar (day 60 is 1 March, day 366 is undefined). A cell is in season in
// month m when start <= m <= end, or for a window crossing New Year
// (start > end) when m >= start || m <= end. Comparisons against an undefined
// month are always false, so an undefined start with a defined end still
// selects the months up to end through the wrap branch.
//
// # Weighting
//
// Harvested area is the weight. Negative, zero and missing areas weigh zero.
// A country value is
//
//	sum(x*w) / sum(w)   when sum(w) > 0
//	NaN                 otherwise
//
// where missing x contributes zero to the numerator and its full weight to the
// denominator. NaN rows are dropped from the final table.
package domain
