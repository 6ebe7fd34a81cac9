package math

/**
 * @brief Applies the affine part of m to every xyz triple of original and writes
 * the results into out. The bottom row of m is ignored (w is assumed to be 1).
 * out and original must have the same length, a multiple of 3. out may alias original.
 *
 * This is the single vertex kernel shared by the synchronous mesh path and the
 * transform lanes.
 *
 * @param out Destination positions.
 * @param original Source positions.
 * @param m Column-major matrix.
 */
func ApplyAffine(out, original []float32, m *Mat4) {
	m0, m1, m2 := m.Data[0], m.Data[1], m.Data[2]
	m4, m5, m6 := m.Data[4], m.Data[5], m.Data[6]
	m8, m9, m10 := m.Data[8], m.Data[9], m.Data[10]
	m12, m13, m14 := m.Data[12], m.Data[13], m.Data[14]

	n := len(original) - len(original)%3
	out = out[:n]
	for i := 0; i < n; i += 3 {
		x, y, z := original[i], original[i+1], original[i+2]
		out[i] = m0*x + m4*y + m8*z + m12
		out[i+1] = m1*x + m5*y + m9*z + m13
		out[i+2] = m2*x + m6*y + m10*z + m14
	}
}

// TransformPositions returns a newly allocated copy of positions transformed by m.
func TransformPositions(positions []float32, m Mat4) []float32 {
	out := make([]float32, len(positions))
	ApplyAffine(out, positions, &m)
	return out
}
