package opencv

import (
	"image"

	"presence-gate/internal/integrations/opencv/debug"

	gocv "gocv.io/x/gocv"
)

// JPEGEncoder kodiert Debug-Bilder mit OpenCV statt image/jpeg
func JPEGEncoder(quality int) debug.Encoder {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return func(img image.Image) ([]byte, error) {
		mat, err := gocv.ImageToMatRGB(img)
		if err != nil {
			return nil, err
		}
		defer mat.Close()

		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
		if err != nil {
			return nil, err
		}
		defer buf.Close()
		return append([]byte(nil), buf.GetBytes()...), nil
	}
}
