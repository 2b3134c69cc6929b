package inference

import "fmt"

// Marker phrases. The pipeline logs these exact messages and Infer matches on
// them, so they must stay in sync with the rule table in infer.go.
const (
	MarkerDataGenerated   = "Generación de datos de entrenamiento completada"
	MarkerFont            = "Generando datos de entrenamiento para"
	MarkerImage           = "Imagen y archivo .box generados para"
	MarkerUnicharset      = "Procesando unicharset"
	MarkerFontProperties  = "Generando font_properties"
	MarkerTrFile          = "Generando archivo .tr para"
	MarkerShapeClustering = "Ejecutando shapeclustering"
	MarkerMFTraining      = "Ejecutando mftraining"
	MarkerCNTraining      = "Ejecutando cntraining"
	MarkerRenaming        = "Renombrando archivos"
	MarkerCombining       = "Combinando datos de entrenamiento"
	MarkerTrainingDone    = "Proceso de entrenamiento completado con éxito"
	MarkerInstalling      = "Instalando modelo"
	MarkerInstalled       = "Modelo instalado"
)

// FontMessage is logged when generation starts on a font.
func FontMessage(font string) string {
	return MarkerFont + " " + font
}

// ImageMessage is logged after a page image and its box file are written.
func ImageMessage(font string, size, block int) string {
	return fmt.Sprintf("%s %s - tamaño %d - bloque %d", MarkerImage, font, size, block)
}

// BatchMessage is logged before a batch of a batched training tool.
func BatchMessage(marker string, batch int) string {
	return fmt.Sprintf("%s - lote %d", marker, batch)
}

// TrFileMessage is logged before a .tr file is produced.
func TrFileMessage(file string) string {
	return MarkerTrFile + " " + file
}

// InstallingMessage is logged before the model is copied into tessdata.
func InstallingMessage(model string) string {
	return MarkerInstalling + " " + model
}
