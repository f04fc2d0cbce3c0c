package handlers

import (
	"database/sql"
	"net/http"

	"jewelshop-api/cache"
	"jewelshop-api/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ImageHandler manages the one-image-per-product lifecycle: uploading
// replaces and deletes the previous file, deleting clears the reference.
type ImageHandler struct {
	db          *sql.DB
	store       *storage.FileStore
	redisClient *redis.Client
	logger      *zap.Logger
}

func NewImageHandler(db *sql.DB, store *storage.FileStore, redisClient *redis.Client, logger *zap.Logger) *ImageHandler {
	return &ImageHandler{
		db:          db,
		store:       store,
		redisClient: redisClient,
		logger:      logger,
	}
}

func (h *ImageHandler) UploadImage(c *gin.Context) {
	ctx, span := otel.Tracer("jewelshop-api").Start(c.Request.Context(), "UploadImage")
	defer span.End()

	productID := c.Param("productId")
	span.SetAttributes(attribute.String("product.id", productID))

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file"})
		return
	}

	var oldImage sql.NullString
	err = h.db.QueryRowContext(ctx, "SELECT image_url FROM products WHERE id = $1", productID).Scan(&oldImage)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch product", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	fileName, err := h.store.SaveUpload(file)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to store image", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if _, err := h.db.ExecContext(ctx,
		"UPDATE products SET image_url = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
		fileName, productID); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to update product image", zap.Error(err))
		h.store.Delete(fileName)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// Replacing an image deletes the previous stored file
	if oldImage.Valid && oldImage.String != "" {
		if err := h.store.Delete(oldImage.String); err != nil {
			h.logger.Warn("Failed to delete old image", zap.String("file", oldImage.String), zap.Error(err))
		}
	}

	cache.DeleteProduct(ctx, h.redisClient, productID)

	h.logger.Info("Image uploaded",
		zap.String("product_id", productID),
		zap.String("file_name", fileName),
	)
	c.JSON(http.StatusOK, gin.H{"message": "File uploaded successfully", "file_name": fileName})
}

func (h *ImageHandler) GetImage(c *gin.Context) {
	fileName := c.Param("fileName")

	path, err := h.store.Path(fileName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return
	}

	c.File(path)
}

func (h *ImageHandler) DeleteImage(c *gin.Context) {
	ctx, span := otel.Tracer("jewelshop-api").Start(c.Request.Context(), "DeleteImage")
	defer span.End()

	productID := c.Param("productId")
	span.SetAttributes(attribute.String("product.id", productID))

	var imageURL sql.NullString
	err := h.db.QueryRowContext(ctx, "SELECT image_url FROM products WHERE id = $1", productID).Scan(&imageURL)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch product", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if !imageURL.Valid || imageURL.String == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product has no image"})
		return
	}

	if err := h.store.Delete(imageURL.String); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to delete image file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if _, err := h.db.ExecContext(ctx,
		"UPDATE products SET image_url = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = $1",
		productID); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to clear product image", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	cache.DeleteProduct(ctx, h.redisClient, productID)

	h.logger.Info("Image deleted", zap.String("product_id", productID))
	c.JSON(http.StatusOK, gin.H{"message": "Image deleted successfully"})
}
