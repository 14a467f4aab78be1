// Package pointset converts plastimatch CXT contours into sampled fiducial
// lists and reads fiducial lists back as coordinates.
package pointset
